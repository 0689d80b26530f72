package graphapi

import (
	"github.com/richinsley/powerselect/render"
)

// Widget types created by the frontend. Hidden widgets are marked as
// converted so the canvas skips them but their values are still saved.
const (
	WidgetText      = "text"
	WidgetNumber    = "number"
	WidgetToggle    = "toggle"
	WidgetCombo     = "combo"
	WidgetButton    = "button"
	WidgetConverted = "converted-widget"
)

// ControlAfterGenerate is the combo the frontend adds right after an INT
// "seed" or "noise_seed" widget. It takes a slot in widgets_values.
const ControlAfterGenerate = "control_after_generate"

var ControlAfterGenerateChoices = []string{"fixed", "increment", "decrement", "randomize"}

// Widget is an editable field on a node instance. Widgets are not part of the
// saved node JSON; their values are written in order to widgets_values.
type Widget struct {
	Name  string
	Type  string
	Value interface{}

	// Callback runs when a button widget is pressed
	Callback func(w *Widget, n *GraphNode)

	// optional overrides, nil means the default behavior
	ComputeSize    func(width float64) Size
	Draw           func(c render.Canvas, n *GraphNode, width, y float64)
	SerializeValue func() interface{}

	// NoSerialize excludes the widget from widgets_values and prompts
	NoSerialize bool
	// FrontendOnly widgets are saved to widgets_values but not sent with prompts
	FrontendOnly bool
}

// SerializedValue returns the value that is saved and sent with prompts
func (w *Widget) SerializedValue() interface{} {
	if w.SerializeValue != nil {
		return w.SerializeValue()
	}
	return w.Value
}

// Height returns the vertical space the widget takes in the node body
func (w *Widget) Height(width float64) float64 {
	if w.ComputeSize != nil {
		return w.ComputeSize(width).Height
	}
	return NodeWidgetHeight
}

// Hidden reports whether the canvas should skip the widget
func (w *Widget) Hidden() bool {
	return w.Type == WidgetConverted
}

// Press runs the callback of a button widget
func (w *Widget) Press(n *GraphNode) {
	if w.Callback != nil {
		w.Callback(w, n)
	}
}
