package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// kappa is the control point distance for approximating a quarter circle with a cubic bezier
const kappa = 0.5522847498

// ImageCanvas rasterizes draw calls into an RGBA image.
type ImageCanvas struct {
	dst    *image.RGBA
	origin Offset
	stack  []Offset
	raster *vector.Rasterizer
	face   font.Face
}

// NewImageCanvas creates a canvas backed by a new w x h image cleared to bg.
// A nil bg leaves the image transparent.
func NewImageCanvas(w, h int, bg color.Color) *ImageCanvas {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if bg != nil {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	}
	return &ImageCanvas{
		dst:    dst,
		raster: vector.NewRasterizer(w, h),
		face:   basicfont.Face7x13,
	}
}

// Image returns the backing image.
func (c *ImageCanvas) Image() *image.RGBA {
	return c.dst
}

func (c *ImageCanvas) Save() {
	c.stack = append(c.stack, c.origin)
}

func (c *ImageCanvas) Restore() {
	if len(c.stack) == 0 {
		return
	}
	c.origin = c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
}

func (c *ImageCanvas) Translate(dx, dy float64) {
	c.origin.X += dx
	c.origin.Y += dy
}

func (c *ImageCanvas) DrawCircle(center Offset, radius float64, paint Paint) {
	if radius <= 0 {
		return
	}
	cx := center.X + c.origin.X
	cy := center.Y + c.origin.Y
	if paint.Fill != nil {
		c.beginPath()
		c.circlePath(cx, cy, radius, false)
		c.fill(paint.Fill)
	}
	if paint.Stroke != nil && paint.StrokeWidth > 0 {
		// the stroke is a ring centered on the outline; the inner circle winds the
		// other way so its coverage cancels out
		half := paint.StrokeWidth / 2
		c.beginPath()
		c.circlePath(cx, cy, radius+half, false)
		if inner := radius - half; inner > 0 {
			c.circlePath(cx, cy, inner, true)
		}
		c.fill(paint.Stroke)
	}
}

func (c *ImageCanvas) DrawText(text string, pos Offset, style TextStyle) {
	if text == "" || style.Color == nil {
		return
	}
	d := &font.Drawer{
		Dst:  c.dst,
		Src:  image.NewUniform(style.Color),
		Face: c.face,
	}
	width := d.MeasureString(text)
	x := fixed.Int26_6(math.Round((pos.X + c.origin.X) * 64))
	switch style.Align {
	case AlignCenter:
		x -= width / 2
	case AlignRight:
		x -= width
	}
	// middle baseline: shift down by half the cap height
	metrics := c.face.Metrics()
	y := fixed.Int26_6(math.Round((pos.Y + c.origin.Y) * 64))
	y += (metrics.Ascent - metrics.Descent) / 2
	d.Dot = fixed.Point26_6{X: x, Y: y}
	d.DrawString(text)
}

func (c *ImageCanvas) beginPath() {
	b := c.dst.Bounds()
	c.raster.Reset(b.Dx(), b.Dy())
}

func (c *ImageCanvas) fill(col color.Color) {
	c.raster.Draw(c.dst, c.dst.Bounds(), image.NewUniform(col), image.Point{})
}

func (c *ImageCanvas) circlePath(cx, cy, r float64, reverse bool) {
	k := r * kappa
	z := c.raster
	p := func(x, y float64) (float32, float32) { return float32(x), float32(y) }

	z.MoveTo(p(cx+r, cy))
	if !reverse {
		x1, y1 := p(cx+r, cy+k)
		x2, y2 := p(cx+k, cy+r)
		x3, y3 := p(cx, cy+r)
		z.CubeTo(x1, y1, x2, y2, x3, y3)
		x1, y1 = p(cx-k, cy+r)
		x2, y2 = p(cx-r, cy+k)
		x3, y3 = p(cx-r, cy)
		z.CubeTo(x1, y1, x2, y2, x3, y3)
		x1, y1 = p(cx-r, cy-k)
		x2, y2 = p(cx-k, cy-r)
		x3, y3 = p(cx, cy-r)
		z.CubeTo(x1, y1, x2, y2, x3, y3)
		x1, y1 = p(cx+k, cy-r)
		x2, y2 = p(cx+r, cy-k)
		x3, y3 = p(cx+r, cy)
		z.CubeTo(x1, y1, x2, y2, x3, y3)
	} else {
		x1, y1 := p(cx+r, cy-k)
		x2, y2 := p(cx+k, cy-r)
		x3, y3 := p(cx, cy-r)
		z.CubeTo(x1, y1, x2, y2, x3, y3)
		x1, y1 = p(cx-k, cy-r)
		x2, y2 = p(cx-r, cy-k)
		x3, y3 = p(cx-r, cy)
		z.CubeTo(x1, y1, x2, y2, x3, y3)
		x1, y1 = p(cx-r, cy+k)
		x2, y2 = p(cx-k, cy+r)
		x3, y3 = p(cx, cy+r)
		z.CubeTo(x1, y1, x2, y2, x3, y3)
		x1, y1 = p(cx+k, cy+r)
		x2, y2 = p(cx+r, cy+k)
		x3, y3 = p(cx+r, cy)
		z.CubeTo(x1, y1, x2, y2, x3, y3)
	}
	z.ClosePath()
}
