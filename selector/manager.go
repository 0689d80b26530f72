// Package selector implements the image power selector node: a dynamic list of
// image_<N> inputs, each with an on/off toggle, whose toggle state is mirrored
// into a hidden widget so it is saved with the workflow and sent with prompts.
package selector

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/richinsley/powerselect/graphapi"
)

const (
	// ShadowWidgetName is the hidden widget that carries the serialized toggle map
	ShadowWidgetName = "toggle_states"
	// SlotPrefix prefixes every image input name
	SlotPrefix = "image_"
	// SlotType is the accepted type of image inputs
	SlotType = "IMAGE"
)

var slotPattern = regexp.MustCompile(`^image_(\d+)$`)

// ToggleMap maps slot names to whether the slot is enabled
type ToggleMap map[string]bool

// SlotRef identifies an image input on the node
type SlotRef struct {
	Name   string
	Index  int // position in the node's inputs
	Suffix int // the N in image_<N>
}

// Geometry is the node-local placement of the toggle indicators
type Geometry struct {
	ToggleX         float64
	HitRadius       float64
	IndicatorRadius float64
}

// DefaultGeometry matches the frontend extension
var DefaultGeometry = Geometry{ToggleX: 75, HitRadius: 12, IndicatorRadius: 5}

// slotSuffix returns N for names of the form image_<N>
func slotSuffix(name string) (int, bool) {
	m := slotPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// too many digits to be a slot we created
		return 0, false
	}
	return n, true
}

// IsSlotName reports whether name is an image slot name
func IsSlotName(name string) bool {
	_, ok := slotSuffix(name)
	return ok
}

// Manager owns the image slots of one node, their toggle map, and the counter
// used to name new slots. Every mutation re-serializes the map into the shadow
// widget so the saved and executed value never lags what the user sees.
//
// A Manager is driven from the host's single event loop and is not safe for
// concurrent use.
type Manager struct {
	node     *graphapi.GraphNode
	toggles  ToggleMap
	counter  int
	shadow   *graphapi.Widget
	geometry Geometry
}

// NewManager creates a manager for node. The shadow widget is looked up by
// name once, and declared if the node does not have it yet.
func NewManager(node *graphapi.GraphNode, geometry Geometry) *Manager {
	m := &Manager{
		node:     node,
		toggles:  make(ToggleMap),
		geometry: geometry,
	}
	m.attachShadow()
	m.sync()
	return m
}

func (m *Manager) attachShadow() {
	if m.shadow != nil {
		return
	}
	m.shadow = m.node.GetWidget(ShadowWidgetName)
	if m.shadow == nil {
		m.shadow = m.node.AddWidget(&graphapi.Widget{
			Name:  ShadowWidgetName,
			Type:  graphapi.WidgetText,
			Value: "{}",
		})
	}
}

// Node returns the managed node
func (m *Manager) Node() *graphapi.GraphNode {
	return m.node
}

// Shadow returns the hidden widget holding the serialized toggle map
func (m *Manager) Shadow() *graphapi.Widget {
	return m.shadow
}

// Counter returns the highest slot number ever assigned
func (m *Manager) Counter() int {
	return m.counter
}

// Geometry returns the toggle indicator placement
func (m *Manager) Geometry() Geometry {
	return m.geometry
}

// ImageSlots returns the node's image inputs in input order
func (m *Manager) ImageSlots() []SlotRef {
	retv := make([]SlotRef, 0)
	for i, s := range m.node.Inputs {
		if n, ok := slotSuffix(s.Name); ok {
			retv = append(retv, SlotRef{Name: s.Name, Index: i, Suffix: n})
		}
	}
	return retv
}

// AddSlot appends a new enabled image input and returns its name
func (m *Manager) AddSlot() string {
	m.counter++
	name := SlotPrefix + strconv.Itoa(m.counter)
	m.node.AddInput(name, SlotType)
	m.toggles[name] = true
	m.sync()
	return name
}

// EnsureDefaultSlots adds count slots when the node has no image inputs yet
func (m *Manager) EnsureDefaultSlots(count int) {
	if len(m.ImageSlots()) > 0 {
		return
	}
	for i := 0; i < count; i++ {
		m.AddSlot()
	}
}

// RemoveLastSlot removes the image input that comes last in input order,
// disconnecting it first. At least one image input is always kept; it
// returns false when nothing was removed.
func (m *Manager) RemoveLastSlot() bool {
	slots := m.ImageSlots()
	if len(slots) < 2 {
		return false
	}

	last := slots[len(slots)-1]
	// tear down the link before the slot goes away so the graph keeps no dangling edge
	if m.node.Inputs[last.Index].Connected() {
		if err := m.node.DisconnectInput(last.Index); err != nil {
			slog.Error("disconnecting image slot", "slot", last.Name, "error", err)
			return false
		}
	}
	if err := m.node.RemoveInput(last.Index); err != nil {
		slog.Error("removing image slot", "slot", last.Name, "error", err)
		return false
	}
	delete(m.toggles, last.Name)
	m.sync()
	return true
}

// Enabled reports whether a slot is enabled. Slots without an entry are enabled.
func (m *Manager) Enabled(name string) bool {
	v, ok := m.toggles[name]
	return !ok || v
}

// Toggle flips the state of name and returns the new value. A name without
// an entry counts as enabled, so its first toggle disables it.
func (m *Manager) Toggle(name string) bool {
	v := !m.Enabled(name)
	m.toggles[name] = v
	m.sync()
	return v
}

// ToggleAll sets every current image slot to value
func (m *Manager) ToggleAll(value bool) {
	for _, s := range m.ImageSlots() {
		m.toggles[s.Name] = value
	}
	m.sync()
}

// States returns a copy of the toggle map
func (m *Manager) States() ToggleMap {
	retv := make(ToggleMap, len(m.toggles))
	for k, v := range m.toggles {
		retv[k] = v
	}
	return retv
}

// Serialize returns the JSON text of the toggle map
func (m *Manager) Serialize() string {
	// keys come out sorted, so equal maps serialize identically
	data, err := json.Marshal(m.toggles)
	if err != nil {
		// a map[string]bool always marshals
		slog.Error("serializing toggle states", "error", err)
		return "{}"
	}
	return string(data)
}

// sync writes the serialized map into the shadow widget
func (m *Manager) sync() {
	m.attachShadow()
	m.shadow.Value = m.Serialize()
}

// slotY returns the node-local y of an input connector
func (m *Manager) slotY(slotIndex int) float64 {
	p := m.node.GetConnectionPos(true, slotIndex)
	return p.Y - m.node.Position.Y
}

// HitTest reports whether the node-local point falls inside the toggle circle of the input at slotIndex
func (m *Manager) HitTest(local graphapi.Pos, slotIndex int) bool {
	dx := local.X - m.geometry.ToggleX
	dy := local.Y - m.slotY(slotIndex)
	r := m.geometry.HitRadius
	return dx*dx+dy*dy < r*r
}

// SlotAt returns the first image slot whose toggle contains the node-local point
func (m *Manager) SlotAt(local graphapi.Pos) (string, bool) {
	for _, s := range m.ImageSlots() {
		if m.HitTest(local, s.Index) {
			return s.Name, true
		}
	}
	return "", false
}
