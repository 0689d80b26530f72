package selector

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/richinsley/powerselect/graphapi"
)

// parseToggleMap decodes s as a JSON object. Entries that are not booleans
// are dropped so the slot falls back to the default.
func parseToggleMap(s string) (ToggleMap, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	if raw == nil {
		// "null"
		return nil, false
	}
	retv := make(ToggleMap, len(raw))
	for k, v := range raw {
		if b, ok := v.(bool); ok {
			retv[k] = b
		} else {
			slog.Debug("dropping non boolean toggle state", "slot", k)
		}
	}
	return retv, true
}

// Reconcile rebuilds the toggle map and counter after a workflow load, once
// the host has restored the saved inputs.
//
//   - The first saved value that is a string starting with "{" and parsing as
//     an object is taken as the map. Older saves only have it there.
//   - A non-empty, parseable shadow value overrides it.
//   - Image inputs missing from the map are added as enabled.
//   - The counter becomes the highest N among the image inputs; it never goes down.
//
// Malformed data is skipped. Reconcile never fails; at worst every slot is enabled.
func (m *Manager) Reconcile(saved []interface{}, shadow *string, inputs []graphapi.Slot) {
	var restored ToggleMap

	for _, v := range saved {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "{") {
			continue
		}
		if parsed, ok := parseToggleMap(s); ok {
			restored = parsed
			break
		}
		slog.Debug("skipping malformed saved toggle states", "value", s)
	}

	if shadow != nil && *shadow != "" {
		if parsed, ok := parseToggleMap(*shadow); ok {
			restored = parsed
		} else {
			slog.Debug("ignoring malformed toggle_states widget value", "value", *shadow)
		}
	}

	if restored == nil {
		restored = make(ToggleMap)
	}

	highest := 0
	for _, in := range inputs {
		n, ok := slotSuffix(in.Name)
		if !ok {
			continue
		}
		if n > highest {
			highest = n
		}
		if _, ok := restored[in.Name]; !ok {
			restored[in.Name] = true
		}
	}

	m.toggles = restored
	if highest > m.counter {
		m.counter = highest
	}
	m.sync()
}

// ReconcileNode runs Reconcile against the node's own saved widget values,
// shadow widget and inputs.
func (m *Manager) ReconcileNode(info *graphapi.NodeInfo) {
	var saved []interface{}
	if info != nil {
		saved = info.WidgetValues
	}
	var shadow *string
	if m.shadow != nil {
		if s, ok := m.shadow.Value.(string); ok {
			shadow = &s
		}
	}
	m.Reconcile(saved, shadow, m.node.Inputs)
}
