package graphapi

import (
	"github.com/richinsley/powerselect/render"
)

// PointerEvent describes a pointer-down on the canvas
type PointerEvent struct {
	Button    int
	CanvasPos Pos
}

// MenuOption is an entry in a node's context menu. A nil entry is a separator.
type MenuOption struct {
	Content  string
	Callback func()
}

// NodeInfo is the saved state a node is configured from when a workflow is loaded
type NodeInfo struct {
	Inputs       []Slot
	Outputs      []Slot
	WidgetValues []interface{}
	Size         Size
}

// NodeHooks are the lifecycle callbacks the host invokes on a node instance.
//
// Extensions wrap the hooks that were registered before them and call through
// to them explicitly, so several extensions can target the same node type.
type NodeHooks interface {
	// OnCreate runs once when the node is constructed, before any saved state is applied
	OnCreate(n *GraphNode)
	// OnReady runs after construction or configuration has finished and the
	// node's widgets exist
	OnReady(n *GraphNode)
	// OnConfigure runs after saved inputs and widget values have been restored
	OnConfigure(n *GraphNode, info *NodeInfo)
	// OnDrawForeground paints over the node body in node-local coordinates
	OnDrawForeground(n *GraphNode, c render.Canvas)
	// OnPointerDown returns true when the event was consumed
	OnPointerDown(n *GraphNode, e PointerEvent, local Pos) bool
	// OnBuildMenu returns the node's context menu options
	OnBuildMenu(n *GraphNode, options []*MenuOption) []*MenuOption
}

// BaseHooks is the no-op end of every hook chain
type BaseHooks struct{}

func (BaseHooks) OnCreate(n *GraphNode)                                      {}
func (BaseHooks) OnReady(n *GraphNode)                                       {}
func (BaseHooks) OnConfigure(n *GraphNode, info *NodeInfo)                   {}
func (BaseHooks) OnDrawForeground(n *GraphNode, c render.Canvas)             {}
func (BaseHooks) OnPointerDown(n *GraphNode, e PointerEvent, local Pos) bool { return false }
func (BaseHooks) OnBuildMenu(n *GraphNode, options []*MenuOption) []*MenuOption {
	return options
}

// HookFactory builds the hooks for one node instance around the previously registered hooks
type HookFactory func(prev NodeHooks) NodeHooks

// HookRegistry holds the extension factories registered per node type
type HookRegistry struct {
	factories map[string][]HookFactory
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		factories: make(map[string][]HookFactory),
	}
}

// Register adds a factory for nodeType. Factories registered later wrap earlier ones.
func (r *HookRegistry) Register(nodeType string, f HookFactory) {
	r.factories[nodeType] = append(r.factories[nodeType], f)
}

// Registered reports whether any extension targets nodeType
func (r *HookRegistry) Registered(nodeType string) bool {
	return len(r.factories[nodeType]) > 0
}

// Build composes a fresh hook chain for a new node instance
func (r *HookRegistry) Build(nodeType string) NodeHooks {
	var h NodeHooks = BaseHooks{}
	for _, f := range r.factories[nodeType] {
		h = f(h)
	}
	return h
}
