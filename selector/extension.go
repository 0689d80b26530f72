package selector

import (
	"github.com/richinsley/powerselect/config"
	"github.com/richinsley/powerselect/graphapi"
	"github.com/richinsley/powerselect/render"
)

const stateKey = "powerselect.manager"

// button and menu labels
const (
	LabelAddImage    = "Add Image"
	LabelRemoveImage = "Remove Image"
	LabelAllOn       = "Toggle All ON"
	LabelAllOff      = "Toggle All OFF"
)

var (
	colorOn       = render.Hex("#4CAF50")
	colorOnStroke = render.Hex("#2E7D32")
	colorOff      = render.RGBA(100, 100, 100, 0.3)
	colorOffLine  = render.Hex("#666")
)

// Extension attaches a Manager to each node of the selector type and drives
// it from the node's lifecycle hooks. Every hook calls through to Prev, the
// hooks registered before this extension.
type Extension struct {
	Prev    graphapi.NodeHooks
	cfg     *config.Config
	manager *Manager
}

// NewExtensionFactory returns the hook factory to register for the selector node type
func NewExtensionFactory(cfg *config.Config) graphapi.HookFactory {
	if cfg == nil {
		cfg = config.Default()
	}
	return func(prev graphapi.NodeHooks) graphapi.NodeHooks {
		if prev == nil {
			prev = graphapi.BaseHooks{}
		}
		return &Extension{Prev: prev, cfg: cfg}
	}
}

// Register adds the selector definition (unless the backend already provided
// one) and the extension to app
func Register(app *graphapi.App, cfg *config.Config) {
	if cfg == nil {
		cfg = config.Default()
	}
	if app.NodeDefs().GetNodeDefByName(cfg.Node.Type) == nil {
		app.NodeDefs().Add(NodeDef(cfg.Node.Type))
	}
	app.RegisterExtension(cfg.Node.Type, NewExtensionFactory(cfg))
}

// ManagerFor returns the manager attached to n, or nil if n is not a selector node
func ManagerFor(n *graphapi.GraphNode) *Manager {
	m, _ := n.State(stateKey).(*Manager)
	return m
}

func (e *Extension) geometry() Geometry {
	return Geometry{
		ToggleX:         e.cfg.Toggle.X,
		HitRadius:       e.cfg.Toggle.HitRadius,
		IndicatorRadius: e.cfg.Toggle.IndicatorRadius,
	}
}

func (e *Extension) ensureManager(n *graphapi.GraphNode) *Manager {
	if e.manager == nil {
		e.manager = NewManager(n, e.geometry())
		n.SetState(stateKey, e.manager)
	}
	return e.manager
}

// refresh resizes the node to fit its slots and asks for a redraw
func refresh(n *graphapi.GraphNode) {
	n.SetSize(n.ComputeSize())
	n.SetDirtyCanvas(true, true)
}

func (e *Extension) OnCreate(n *graphapi.GraphNode) {
	e.Prev.OnCreate(n)

	m := e.ensureManager(n)
	// a loaded node has no inputs yet at this point; its saved ones replace these
	m.EnsureDefaultSlots(e.cfg.Node.DefaultSlots)

	n.AddButton(LabelAddImage, func(w *graphapi.Widget, n *graphapi.GraphNode) {
		m.AddSlot()
		refresh(n)
	})
	n.AddButton(LabelRemoveImage, func(w *graphapi.Widget, n *graphapi.GraphNode) {
		m.RemoveLastSlot()
		refresh(n)
	})

	if n.Size.Width < e.cfg.Node.MinWidth {
		n.Size.Width = e.cfg.Node.MinWidth
	}
	m.sync()
	n.ScheduleReady()
}

// OnReady hides the shadow widget once the host has created it. The widget
// stays in the node's widget list so its value is still saved and sent.
func (e *Extension) OnReady(n *graphapi.GraphNode) {
	e.Prev.OnReady(n)

	m := e.ensureManager(n)
	w := m.Shadow()
	w.Type = graphapi.WidgetConverted
	w.ComputeSize = func(width float64) graphapi.Size {
		return graphapi.Size{Width: 0, Height: -4}
	}
	w.Draw = func(c render.Canvas, n *graphapi.GraphNode, width, y float64) {}
	w.SerializeValue = func() interface{} {
		return m.Serialize()
	}
	m.sync()
	refresh(n)
}

func (e *Extension) OnConfigure(n *graphapi.GraphNode, info *graphapi.NodeInfo) {
	e.Prev.OnConfigure(n, info)

	m := e.ensureManager(n)
	// the saved inputs replaced the slots OnCreate added, so their numbers are free again
	m.counter = 0
	m.ReconcileNode(info)
	m.EnsureDefaultSlots(1)
	n.ScheduleReady()
}

func (e *Extension) OnDrawForeground(n *graphapi.GraphNode, c render.Canvas) {
	e.Prev.OnDrawForeground(n, c)
	if e.manager == nil {
		return
	}

	m := e.manager
	g := m.Geometry()
	for _, s := range m.ImageSlots() {
		on := m.Enabled(s.Name)
		y := m.slotY(s.Index)

		paint := render.Paint{Fill: colorOff, Stroke: colorOffLine, StrokeWidth: 1.5}
		label := render.TextStyle{Color: colorOffLine, Align: render.AlignLeft}
		text := "OFF"
		if on {
			paint = render.Paint{Fill: colorOn, Stroke: colorOnStroke, StrokeWidth: 1.5}
			label.Color = colorOn
			text = "ON"
		}

		c.Save()
		c.DrawCircle(render.Offset{X: g.ToggleX, Y: y}, g.IndicatorRadius, paint)
		c.DrawText(text, render.Offset{X: g.ToggleX + 8, Y: y}, label)
		c.Restore()
	}
}

func (e *Extension) OnPointerDown(n *graphapi.GraphNode, ev graphapi.PointerEvent, local graphapi.Pos) bool {
	if e.manager != nil {
		if name, ok := e.manager.SlotAt(local); ok {
			e.manager.Toggle(name)
			n.SetDirtyCanvas(true, true)
			return true
		}
	}
	return e.Prev.OnPointerDown(n, ev, local)
}

func (e *Extension) OnBuildMenu(n *graphapi.GraphNode, options []*graphapi.MenuOption) []*graphapi.MenuOption {
	options = e.Prev.OnBuildMenu(n, options)
	if e.manager == nil {
		return options
	}

	m := e.manager
	ours := []*graphapi.MenuOption{
		{Content: LabelAllOn, Callback: func() {
			m.ToggleAll(true)
			n.SetDirtyCanvas(true, true)
		}},
		{Content: LabelAllOff, Callback: func() {
			m.ToggleAll(false)
			n.SetDirtyCanvas(true, true)
		}},
		nil, // separator
	}
	return append(ours, options...)
}
