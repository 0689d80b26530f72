package render

// OpKind identifies a recorded draw call.
type OpKind string

const (
	OpCircle OpKind = "circle"
	OpText   OpKind = "text"
)

// Op is a single recorded draw call with its position already translated.
type Op struct {
	Kind   OpKind
	Center Offset
	Radius float64
	Paint  Paint
	Text   string
	Style  TextStyle
}

// Recorder is a Canvas that keeps a display list instead of rasterizing.
type Recorder struct {
	Ops    []Op
	origin Offset
	stack  []Offset
}

func (r *Recorder) Save() {
	r.stack = append(r.stack, r.origin)
}

func (r *Recorder) Restore() {
	if len(r.stack) == 0 {
		return
	}
	r.origin = r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *Recorder) Translate(dx, dy float64) {
	r.origin.X += dx
	r.origin.Y += dy
}

func (r *Recorder) DrawCircle(center Offset, radius float64, paint Paint) {
	r.Ops = append(r.Ops, Op{
		Kind:   OpCircle,
		Center: Offset{X: center.X + r.origin.X, Y: center.Y + r.origin.Y},
		Radius: radius,
		Paint:  paint,
	})
}

func (r *Recorder) DrawText(text string, pos Offset, style TextStyle) {
	r.Ops = append(r.Ops, Op{
		Kind:   OpText,
		Center: Offset{X: pos.X + r.origin.X, Y: pos.Y + r.origin.Y},
		Text:   text,
		Style:  style,
	})
}

// Replay draws the recorded ops onto another canvas.
func (r *Recorder) Replay(c Canvas) {
	for _, op := range r.Ops {
		switch op.Kind {
		case OpCircle:
			c.DrawCircle(op.Center, op.Radius, op.Paint)
		case OpText:
			c.DrawText(op.Text, op.Center, op.Style)
		}
	}
}

// Filter returns the recorded ops of the given kind.
func (r *Recorder) Filter(kind OpKind) []Op {
	retv := make([]Op, 0)
	for _, op := range r.Ops {
		if op.Kind == kind {
			retv = append(retv, op)
		}
	}
	return retv
}
