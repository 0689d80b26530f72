package graphapi

import (
	"fmt"
	"log/slog"

	"github.com/richinsley/powerselect/render"
)

// App is the host side of the node lifecycle: it instantiates nodes from their
// definitions, runs extension hooks, and dispatches canvas events to them.
// It is single threaded; callers must not use it from several goroutines.
type App struct {
	defs    *NodeDefs
	hooks   *HookRegistry
	pending []*GraphNode
}

func NewApp(defs *NodeDefs) *App {
	if defs == nil {
		defs = &NodeDefs{}
	}
	return &App{
		defs:  defs,
		hooks: NewHookRegistry(),
	}
}

// NodeDefs returns the definitions the app instantiates nodes from
func (a *App) NodeDefs() *NodeDefs {
	return a.defs
}

// RegisterExtension wraps the hooks of nodeType with f
func (a *App) RegisterExtension(nodeType string, f HookFactory) {
	a.hooks.Register(nodeType, f)
}

// instantiate creates the widgets and declared slots for n from its definition
// and attaches its hook chain
func (a *App) instantiate(n *GraphNode) {
	n.app = a
	n.Widgets = nil
	n.Hooks = a.hooks.Build(n.Type)

	def := a.defs.GetNodeDefByName(n.Type)
	if def == nil {
		if !n.IsVirtual() {
			slog.Debug("no definition for node", "node type", n.Type)
		}
		return
	}
	n.DisplayName = def.DisplayName
	n.Description = def.Description
	n.IsOutput = def.OutputNode

	for _, decl := range def.Inputs() {
		if decl.IsWidget() {
			n.AddWidget(&Widget{
				Name:  decl.Name,
				Type:  widgetTypes[decl.Type],
				Value: decl.Default(),
			})
			if decl.Type == "INT" && (decl.Name == "seed" || decl.Name == "noise_seed") {
				n.AddWidget(&Widget{
					Name:         ControlAfterGenerate,
					Type:         WidgetCombo,
					Value:        "randomize",
					FrontendOnly: true,
				})
			}
		} else if !decl.Optional {
			n.AddInput(decl.Name, decl.Type)
		}
	}
	if len(n.Outputs) == 0 {
		for i, t := range def.Output {
			name := t
			if i < len(def.OutputName) {
				name = def.OutputName[i]
			}
			n.AddOutput(name, t)
		}
	}
}

// CreateNode constructs a new node of nodeType, adds it to g and runs OnCreate.
// The node's OnReady hook runs on the next Flush.
func (a *App) CreateNode(g *Graph, nodeType string) (*GraphNode, error) {
	if a.defs.GetNodeDefByName(nodeType) == nil && !a.hooks.Registered(nodeType) {
		return nil, fmt.Errorf("unknown node type %q", nodeType)
	}
	n := NewGraphNode(nodeType)
	a.instantiate(n)
	g.Add(n)
	n.hooks().OnCreate(n)
	n.SetSize(n.ComputeSize())
	return n, nil
}

// LoadGraph instantiates every node of a decoded workflow the way the frontend
// does on load: construct (OnCreate), then restore the saved inputs and widget
// values, then OnConfigure. Nodes without a definition or extension are left as saved.
func (a *App) LoadGraph(g *Graph) {
	for _, n := range g.Nodes {
		if a.defs.GetNodeDefByName(n.Type) == nil && !a.hooks.Registered(n.Type) {
			continue
		}

		info := &NodeInfo{
			Inputs:       append([]Slot(nil), n.Inputs...),
			Outputs:      append([]Slot(nil), n.Outputs...),
			WidgetValues: append([]interface{}(nil), n.WidgetValues...),
			Size:         n.Size,
		}

		n.Inputs = nil
		n.Outputs = nil
		a.instantiate(n)
		n.hooks().OnCreate(n)

		a.configure(n, info)
	}
}

func (a *App) configure(n *GraphNode, info *NodeInfo) {
	// saved slots replace whatever the constructor declared
	n.Inputs = append([]Slot(nil), info.Inputs...)
	if len(info.Outputs) > 0 {
		n.Outputs = append([]Slot(nil), info.Outputs...)
	}
	n.applyWidgetValues(info.WidgetValues)
	n.Size = info.Size
	n.hooks().OnConfigure(n, info)
}

func (a *App) schedule(n *GraphNode) {
	for _, p := range a.pending {
		if p == n {
			return
		}
	}
	a.pending = append(a.pending, n)
}

// Pending reports how many nodes are waiting for OnReady
func (a *App) Pending() int {
	return len(a.pending)
}

// Flush runs the OnReady hook of every node that asked for it, in request order
func (a *App) Flush() {
	for len(a.pending) > 0 {
		n := a.pending[0]
		a.pending = a.pending[1:]
		n.hooks().OnReady(n)
	}
}

// PointerDown dispatches a pointer-down at a graph space position to n
func (a *App) PointerDown(n *GraphNode, e PointerEvent) bool {
	local := Pos{X: e.CanvasPos.X - n.Position.X, Y: e.CanvasPos.Y - n.Position.Y}
	return n.hooks().OnPointerDown(n, e, local)
}

// DrawForeground translates c to the node's position and runs OnDrawForeground
func (a *App) DrawForeground(n *GraphNode, c render.Canvas) {
	c.Save()
	c.Translate(n.Position.X, n.Position.Y)
	n.hooks().OnDrawForeground(n, c)
	c.Restore()
	n.ClearDirty()
}

// ContextMenu builds the context menu for n
func (a *App) ContextMenu(n *GraphNode) []*MenuOption {
	options := []*MenuOption{
		{Content: "Properties"},
		{Content: "Title"},
		{Content: "Mode"},
		nil,
		{Content: "Remove"},
	}
	return n.hooks().OnBuildMenu(n, options)
}
