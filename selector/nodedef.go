package selector

import (
	"encoding/json"
	"log/slog"

	"github.com/richinsley/powerselect/graphapi"
)

// definition as reported by the backend's /object_info; image inputs are
// accepted dynamically and are not declared
const nodeDefJSON = `{
	"input": {
		"required": {},
		"optional": {
			"toggle_states": ["STRING", {"default": "{}"}]
		}
	},
	"output": ["IMAGE"],
	"output_is_list": [false],
	"output_name": ["image"],
	"name": "DD_ImagePowerSelector",
	"display_name": "DD Image Power Selector",
	"description": "Selectable image batch builder with per-slot toggle switches.",
	"category": "DD Nodes/Image",
	"output_node": false
}`

// NodeDef returns the built-in selector definition under nodeType, for use
// when no backend is available
func NodeDef(nodeType string) *graphapi.NodeDef {
	def := &graphapi.NodeDef{}
	if err := json.Unmarshal([]byte(nodeDefJSON), def); err != nil {
		slog.Error("decoding built-in node definition", "error", err)
		return &graphapi.NodeDef{Name: nodeType, Output: []string{SlotType}, OutputName: []string{"image"}}
	}
	def.Name = nodeType
	return def
}
