package graphapi

// Slot represents a connection point within a GraphNode.
// For inputs Link holds the id of the connected link, or nil when the
// slot is not connected. Outputs use Links instead.
type Slot struct {
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Link      *int        `json:"link,omitempty"`
	Links     *[]int      `json:"links,omitempty"`
	Label     string      `json:"label,omitempty"`
	Widget    *SlotWidget `json:"widget,omitempty"`
	Shape     *int        `json:"shape,omitempty"`
	SlotIndex *int        `json:"slot_index,omitempty"`
}

// SlotWidget marks an input that was converted from a widget
type SlotWidget struct {
	Name string `json:"name"`
}

// Connected reports whether an input slot has a link attached
func (s *Slot) Connected() bool {
	return s.Link != nil
}
