package graphapi

import (
	"errors"
	"log/slog"
)

// Layout constants matching the LiteGraph defaults used by the ComfyUI frontend
const (
	NodeSlotHeight   = 20.0
	NodeWidgetHeight = 20.0
	NodeTitleHeight  = 30.0
	NodeMinWidth     = 140.0
)

// node modes
const (
	ModeAlways = 0
	ModeNever  = 2 // muted
	ModeBypass = 4
)

var ErrSlotOutOfRange = errors.New("slot index out of range")

// GraphNode represents the encapsulation of an individual functionality within a Graph
type GraphNode struct {
	ID                 int                    `json:"id"`
	Type               string                 `json:"type"`
	Position           Pos                    `json:"pos"`
	Size               Size                   `json:"size"`
	Flags              map[string]interface{} `json:"flags"`
	Order              int                    `json:"order"`
	Mode               int                    `json:"mode"`
	Title              string                 `json:"title,omitempty"`
	InternalProperties map[string]interface{} `json:"properties"` // node properties, not widget values!
	WidgetValues       []interface{}          `json:"widgets_values,omitempty"`
	Color              string                 `json:"color,omitempty"`
	BGColor            string                 `json:"bgcolor,omitempty"`
	Inputs             []Slot                 `json:"inputs,omitempty"`
	Outputs            []Slot                 `json:"outputs,omitempty"`
	Graph              *Graph                 `json:"-"`
	Widgets            []*Widget              `json:"-"`
	Hooks              NodeHooks              `json:"-"`
	DisplayName        string                 `json:"-"`
	Description        string                 `json:"-"`
	IsOutput           bool                   `json:"-"`

	app             *App
	state           map[string]interface{}
	dirtyForeground bool
	dirtyBackground bool
}

// NewGraphNode creates an empty node of the given type
func NewGraphNode(nodeType string) *GraphNode {
	return &GraphNode{
		Type:               nodeType,
		Size:               Size{Width: NodeMinWidth, Height: NodeSlotHeight},
		Flags:              make(map[string]interface{}),
		InternalProperties: make(map[string]interface{}),
	}
}

func (n *GraphNode) IsVirtual() bool {
	// current nodes that are 'virtual':
	switch n.Type {
	case "PrimitiveNode", "Reroute", "Note":
		return true
	}
	return false
}

// hooks never returns nil so callers can dispatch unconditionally
func (n *GraphNode) hooks() NodeHooks {
	if n.Hooks == nil {
		return BaseHooks{}
	}
	return n.Hooks
}

// SetState stores per-instance extension state on the node
func (n *GraphNode) SetState(key string, v interface{}) {
	if n.state == nil {
		n.state = make(map[string]interface{})
	}
	n.state[key] = v
}

// State returns extension state previously stored with SetState
func (n *GraphNode) State(key string) interface{} {
	if n.state == nil {
		return nil
	}
	return n.state[key]
}

// AddInput appends a new unconnected input slot and returns it.
// The returned pointer is only valid until the inputs are modified again.
func (n *GraphNode) AddInput(name string, slotType string) *Slot {
	n.Inputs = append(n.Inputs, Slot{Name: name, Type: slotType})
	return &n.Inputs[len(n.Inputs)-1]
}

// AddOutput appends a new output slot
func (n *GraphNode) AddOutput(name string, slotType string) *Slot {
	idx := len(n.Outputs)
	n.Outputs = append(n.Outputs, Slot{Name: name, Type: slotType, SlotIndex: &idx})
	return &n.Outputs[idx]
}

// DisconnectInput removes the link attached to the input at slotIndex from
// the node and its graph. Disconnecting an unconnected input is a no-op.
func (n *GraphNode) DisconnectInput(slotIndex int) error {
	if slotIndex < 0 || slotIndex >= len(n.Inputs) {
		return ErrSlotOutOfRange
	}
	slot := &n.Inputs[slotIndex]
	if slot.Link == nil {
		return nil
	}
	linkID := *slot.Link
	slot.Link = nil
	if n.Graph != nil {
		n.Graph.removeLink(linkID)
	}
	return nil
}

// RemoveInput removes the input at slotIndex. Links into later inputs are
// renumbered so they keep pointing at the same slot.
func (n *GraphNode) RemoveInput(slotIndex int) error {
	if slotIndex < 0 || slotIndex >= len(n.Inputs) {
		return ErrSlotOutOfRange
	}
	if n.Inputs[slotIndex].Connected() {
		slog.Warn("removing connected input, disconnecting first", "node", n.ID, "slot", n.Inputs[slotIndex].Name)
		if err := n.DisconnectInput(slotIndex); err != nil {
			return err
		}
	}

	n.Inputs = append(n.Inputs[:slotIndex], n.Inputs[slotIndex+1:]...)
	if n.Graph != nil {
		for i := slotIndex; i < len(n.Inputs); i++ {
			if n.Inputs[i].Link == nil {
				continue
			}
			if l := n.Graph.GetLinkById(*n.Inputs[i].Link); l != nil {
				l.TargetSlot = i
			}
		}
	}
	return nil
}

// ConnectInput links output originSlot of origin to the input at slotIndex
func (n *GraphNode) ConnectInput(slotIndex int, origin *GraphNode, originSlot int) (*Link, error) {
	if slotIndex < 0 || slotIndex >= len(n.Inputs) {
		return nil, ErrSlotOutOfRange
	}
	if originSlot < 0 || originSlot >= len(origin.Outputs) {
		return nil, ErrSlotOutOfRange
	}
	if n.Graph == nil || origin.Graph != n.Graph {
		return nil, errors.New("nodes are not in the same graph")
	}
	if err := n.DisconnectInput(slotIndex); err != nil {
		return nil, err
	}
	return n.Graph.addLink(origin, originSlot, n, slotIndex), nil
}

// GetLinks returns the ids of links leaving the first output, following reroutes
func (n *GraphNode) GetLinks() []int {
	retv := make([]int, 0)
	if len(n.Outputs) == 0 || n.Outputs[0].Links == nil || n.Graph == nil {
		return retv
	}
	for _, l := range *n.Outputs[0].Links {
		linkInfo := n.Graph.GetLinkById(l)
		if linkInfo == nil {
			continue
		}
		tn := n.Graph.GetNodeById(linkInfo.TargetID)
		if tn != nil && tn.Type == "Reroute" {
			retv = append(retv, tn.GetLinks()...)
		} else {
			retv = append(retv, l)
		}
	}
	return retv
}

func (n *GraphNode) GetNodeForInput(slotIndex int) *GraphNode {
	l := n.GetInputLink(slotIndex)
	if l == nil {
		return nil
	}
	return n.Graph.GetNodeById(l.OriginID)
}

func (n *GraphNode) GetInputLink(slotIndex int) *Link {
	if n.Graph == nil || slotIndex < 0 || slotIndex >= len(n.Inputs) {
		return nil
	}

	slot := n.Inputs[slotIndex]
	if slot.Link == nil {
		return nil
	}
	return n.Graph.GetLinkById(*slot.Link)
}

func (n *GraphNode) GetInputWithName(name string) *Slot {
	for i, s := range n.Inputs {
		if s.Name == name {
			return &n.Inputs[i]
		}
	}
	return nil
}

// GetWidget returns the first widget with the given name
func (n *GraphNode) GetWidget(name string) *Widget {
	for _, w := range n.Widgets {
		if w.Name == name {
			return w
		}
	}
	return nil
}

// AddWidget appends a widget to the node
func (n *GraphNode) AddWidget(w *Widget) *Widget {
	n.Widgets = append(n.Widgets, w)
	return w
}

// AddButton appends a button widget. Buttons are never serialized.
func (n *GraphNode) AddButton(label string, callback func(w *Widget, n *GraphNode)) *Widget {
	return n.AddWidget(&Widget{
		Name:        label,
		Type:        WidgetButton,
		Callback:    callback,
		NoSerialize: true,
	})
}

// SerializeWidgets returns the values saved to widgets_values
func (n *GraphNode) SerializeWidgets() []interface{} {
	retv := make([]interface{}, 0, len(n.Widgets))
	for _, w := range n.Widgets {
		if w.NoSerialize {
			continue
		}
		retv = append(retv, w.SerializedValue())
	}
	return retv
}

// applyWidgetValues restores saved values onto serializable widgets by position
func (n *GraphNode) applyWidgetValues(values []interface{}) {
	i := 0
	for _, w := range n.Widgets {
		if w.NoSerialize {
			continue
		}
		if i >= len(values) {
			break
		}
		w.Value = values[i]
		i++
	}
}

// GetConnectionPos returns the position of a slot's connector in graph space
func (n *GraphNode) GetConnectionPos(isInput bool, slotIndex int) Pos {
	offset := NodeSlotHeight * 0.5
	y := n.Position.Y + (float64(slotIndex)+0.7)*NodeSlotHeight
	if isInput {
		return Pos{X: n.Position.X + offset, Y: y}
	}
	return Pos{X: n.Position.X + n.Size.Width + 1 - offset, Y: y}
}

// ComputeSize returns the size the node needs for its slots and widgets
func (n *GraphNode) ComputeSize() Size {
	rows := len(n.Inputs)
	if len(n.Outputs) > rows {
		rows = len(n.Outputs)
	}
	if rows < 1 {
		rows = 1
	}
	width := n.Size.Width
	if width < NodeMinWidth {
		width = NodeMinWidth
	}
	height := float64(rows) * NodeSlotHeight
	if len(n.Widgets) > 0 {
		for _, w := range n.Widgets {
			height += w.Height(width) + 4
		}
		height += 8
	} else {
		height += 6
	}
	return Size{Width: width, Height: height}
}

func (n *GraphNode) SetSize(s Size) {
	n.Size = s
}

// SetDirtyCanvas flags the foreground and/or background for redraw
func (n *GraphNode) SetDirtyCanvas(foreground, background bool) {
	n.dirtyForeground = n.dirtyForeground || foreground
	n.dirtyBackground = n.dirtyBackground || background
}

// Dirty reports the pending redraw flags
func (n *GraphNode) Dirty() (foreground, background bool) {
	return n.dirtyForeground, n.dirtyBackground
}

// ClearDirty resets the redraw flags after the host has drawn the node
func (n *GraphNode) ClearDirty() {
	n.dirtyForeground = false
	n.dirtyBackground = false
}

// ScheduleReady asks the host to call the node's OnReady hook once the
// current synchronous setup has finished. Without a host the hook runs now.
func (n *GraphNode) ScheduleReady() {
	if n.app == nil {
		n.hooks().OnReady(n)
		return
	}
	n.app.schedule(n)
}
