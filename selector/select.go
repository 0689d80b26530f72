package selector

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
)

// Select returns the names of the image inputs that contribute to the output
// batch, ordered by slot number: inputs that are present (non-nil) and not
// switched off. Inputs without a toggle entry are enabled.
//
// Unlike Reconcile, malformed toggle state is an error here, matching the
// backend node which refuses to run with it.
func Select(toggleStates string, inputs map[string]interface{}) ([]string, error) {
	if toggleStates == "" {
		toggleStates = "{}"
	}
	var toggles map[string]interface{}
	if err := json.Unmarshal([]byte(toggleStates), &toggles); err != nil {
		return nil, fmt.Errorf("toggle_states: %w", err)
	}

	slots := make([]SlotRef, 0, len(inputs))
	for name, v := range inputs {
		n, ok := slotSuffix(name)
		if !ok || v == nil {
			continue
		}
		slots = append(slots, SlotRef{Name: name, Suffix: n})
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Suffix < slots[j].Suffix
	})

	retv := make([]string, 0, len(slots))
	for _, s := range slots {
		if v, ok := toggles[s.Name]; ok && !truthy(v) {
			continue
		}
		retv = append(retv, s.Name)
	}
	return retv, nil
}

// truthy follows the backend's truth test for decoded JSON values
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	return true
}

// toggleSchema describes a valid toggle_states value: an object of booleans
var toggleSchema = &jsonschema.Schema{
	Type:                 "object",
	AdditionalProperties: &jsonschema.Schema{Type: "boolean"},
}

var ErrInvalidToggleStates = errors.New("invalid toggle_states")

// Validate checks a toggle_states value strictly. Loading never needs this,
// since Reconcile tolerates bad data; it is for reporting problems in saved workflows.
func Validate(toggleStates string) error {
	var instance interface{}
	if err := json.Unmarshal([]byte(toggleStates), &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToggleStates, err)
	}
	resolved, err := toggleSchema.Resolve(nil)
	if err != nil {
		return err
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToggleStates, err)
	}
	for name := range instance.(map[string]interface{}) {
		if !IsSlotName(name) {
			return fmt.Errorf("%w: %q is not an image slot name", ErrInvalidToggleStates, name)
		}
	}
	return nil
}
