package graphapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NodeDefs is the collection of node definitions returned by /object_info
type NodeDefs struct {
	Objects map[string]*NodeDef
}

// NodeDef represents the metadata that describes how to generate an instance of a node for a graph.
type NodeDef struct {
	Input        *NodeDefInput `json:"input"`
	Output       []string      `json:"output"` // output type
	OutputIsList []bool        `json:"output_is_list"`
	OutputName   []string      `json:"output_name"`
	Name         string        `json:"name"`
	DisplayName  string        `json:"display_name"`
	Description  string        `json:"description"`
	Category     string        `json:"category"`
	OutputNode   bool          `json:"output_node"`
}

// InputDecl is a single declared input in definition order
type InputDecl struct {
	Name     string
	Type     string // "INT", "STRING", "IMAGE", ... or "COMBO" for list inputs
	Options  map[string]interface{}
	Choices  []interface{}
	Optional bool
}

// widgetTypes maps declared input types that become widgets to the widget kind
var widgetTypes = map[string]string{
	"INT":     WidgetNumber,
	"FLOAT":   WidgetNumber,
	"STRING":  WidgetText,
	"BOOLEAN": WidgetToggle,
	"COMBO":   WidgetCombo,
}

// IsWidget reports whether the frontend renders the input as a widget instead of a slot
func (d InputDecl) IsWidget() bool {
	_, ok := widgetTypes[d.Type]
	return ok
}

// Default returns the declared default value for a widget input
func (d InputDecl) Default() interface{} {
	if v, ok := d.Options["default"]; ok {
		return v
	}
	switch d.Type {
	case "STRING":
		return ""
	case "INT", "FLOAT":
		return 0.0
	case "BOOLEAN":
		return false
	case "COMBO":
		if len(d.Choices) > 0 {
			return d.Choices[0]
		}
	}
	return nil
}

type NodeDefInput struct {
	Required        map[string]*interface{} `json:"required"`
	Optional        map[string]*interface{} `json:"optional,omitempty"`
	OrderedRequired []string                `json:"-"`
	OrderedOptional []string                `json:"-"`
}

// UnmarshalJSON keeps the declaration order of inputs, which decides the
// order of widgets and therefore of widgets_values.
func (ndi *NodeDefInput) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil {
		return err
	} // consume opening brace

	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return err
		}

		key, _ := t.(string)
		switch key {
		case "required", "optional":
			m, order, err := decodeOrderedObject(dec)
			if err != nil {
				return fmt.Errorf("input %s: %w", key, err)
			}
			if key == "required" {
				ndi.Required, ndi.OrderedRequired = m, order
			} else {
				ndi.Optional, ndi.OrderedOptional = m, order
			}
		default:
			if err := dec.Decode(new(interface{})); err != nil { // consume and ignore non-expected field
				return err
			}
		}
	}

	if _, err := dec.Token(); err != nil { // consume closing brace
		return err
	}
	return nil
}

func decodeOrderedObject(dec *json.Decoder) (map[string]*interface{}, []string, error) {
	if _, err := dec.Token(); err != nil { // consume opening brace of nested object
		return nil, nil, err
	}

	m := make(map[string]*interface{})
	order := make([]string, 0)
	for dec.More() {
		keyToken, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		entryKey, _ := keyToken.(string)

		raw := json.RawMessage{}
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}

		// decode again without UseNumber so numbers are float64 like the rest of the graph
		var i interface{}
		if err := json.Unmarshal(raw, &i); err != nil {
			return nil, nil, err
		}
		m[entryKey] = &i
		order = append(order, entryKey)
	}

	if _, err := dec.Token(); err != nil { // consume closing brace of nested object
		return nil, nil, err
	}
	return m, order, nil
}

// Inputs returns the required then optional inputs in declaration order
func (n *NodeDef) Inputs() []InputDecl {
	retv := make([]InputDecl, 0)
	if n.Input == nil {
		return retv
	}
	for _, k := range n.Input.OrderedRequired {
		if d, ok := newInputDecl(k, n.Input.Required[k], false); ok {
			retv = append(retv, d)
		}
	}
	for _, k := range n.Input.OrderedOptional {
		if d, ok := newInputDecl(k, n.Input.Optional[k], true); ok {
			retv = append(retv, d)
		}
	}
	return retv
}

// an input is declared as [type] or [type, {options}], where type is either
// a string or a list of combo choices
func newInputDecl(name string, v *interface{}, optional bool) (InputDecl, bool) {
	d := InputDecl{Name: name, Optional: optional}
	if v == nil {
		return d, false
	}
	arr, ok := (*v).([]interface{})
	if !ok || len(arr) == 0 {
		return d, false
	}
	switch t := arr[0].(type) {
	case string:
		d.Type = t
	case []interface{}:
		d.Type = "COMBO"
		d.Choices = t
	default:
		return d, false
	}
	if len(arr) > 1 {
		if opts, ok := arr[1].(map[string]interface{}); ok {
			d.Options = opts
		}
	}
	return d, true
}

// NewNodeDefsFromJSON decodes an /object_info response
func NewNodeDefsFromJSON(data []byte) (*NodeDefs, error) {
	result := &NodeDefs{}
	if err := json.Unmarshal(data, &result.Objects); err != nil {
		return nil, err
	}
	return result, nil
}

// Add registers a definition, replacing any existing one with the same name
func (n *NodeDefs) Add(def *NodeDef) {
	if n.Objects == nil {
		n.Objects = make(map[string]*NodeDef)
	}
	n.Objects[def.Name] = def
}

func (n *NodeDefs) GetNodeDefByName(name string) *NodeDef {
	if n == nil {
		return nil
	}
	val, ok := n.Objects[name]
	if ok {
		return val
	}
	return nil
}
