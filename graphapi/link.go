package graphapi

import (
	"encoding/json"
	"fmt"
)

// Link connects an output slot of one node to an input slot of another.
// Top level workflow links are saved as
// [id, origin_id, origin_slot, target_id, target_slot, type];
// newer frontends may also write them as objects.
type Link struct {
	ID         int
	OriginID   int
	OriginSlot int
	TargetID   int
	TargetSlot int
	Type       string

	objectFormat bool
}

type linkObject struct {
	ID         int    `json:"id"`
	OriginID   int    `json:"origin_id"`
	OriginSlot int    `json:"origin_slot"`
	TargetID   int    `json:"target_id"`
	TargetSlot int    `json:"target_slot"`
	Type       string `json:"type"`
}

func (l *Link) UnmarshalJSON(b []byte) error {
	var tuple []interface{}
	if err := json.Unmarshal(b, &tuple); err == nil {
		if len(tuple) != 6 {
			return fmt.Errorf("link: expected 6 fields, got %d", len(tuple))
		}
		ints := make([]int, 5)
		for i := range ints {
			f, ok := tuple[i].(float64)
			if !ok {
				return fmt.Errorf("link: field %d is not a number", i)
			}
			ints[i] = int(f)
		}
		l.ID, l.OriginID, l.OriginSlot, l.TargetID, l.TargetSlot = ints[0], ints[1], ints[2], ints[3], ints[4]
		// the type is "*" or a string for everything we care about
		l.Type, _ = tuple[5].(string)
		l.objectFormat = false
		return nil
	}

	var obj linkObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	l.ID = obj.ID
	l.OriginID = obj.OriginID
	l.OriginSlot = obj.OriginSlot
	l.TargetID = obj.TargetID
	l.TargetSlot = obj.TargetSlot
	l.Type = obj.Type
	l.objectFormat = true
	return nil
}

func (l *Link) MarshalJSON() ([]byte, error) {
	if l.objectFormat {
		return json.Marshal(linkObject{
			ID:         l.ID,
			OriginID:   l.OriginID,
			OriginSlot: l.OriginSlot,
			TargetID:   l.TargetID,
			TargetSlot: l.TargetSlot,
			Type:       l.Type,
		})
	}
	return json.Marshal([]interface{}{l.ID, l.OriginID, l.OriginSlot, l.TargetID, l.TargetSlot, l.Type})
}
