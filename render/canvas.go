// Package render provides the drawing surface node foreground hooks paint onto,
// along with a raster implementation and a recording implementation.
package render

import (
	"image/color"
)

// Offset represents a 2D point in pixel coordinates.
type Offset struct {
	X float64
	Y float64
}

// Paint describes how a shape is filled and outlined. A nil color skips that pass.
type Paint struct {
	Fill        color.Color
	Stroke      color.Color
	StrokeWidth float64
}

// TextAlign mirrors the canvas textAlign setting for labels.
type TextAlign int

const (
	AlignLeft TextAlign = iota
	AlignCenter
	AlignRight
)

// TextStyle describes how a label is drawn. Labels are always vertically
// centered on the given position.
type TextStyle struct {
	Color color.Color
	Align TextAlign
}

// Canvas is the surface node foreground hooks draw onto. Coordinates are
// node-local once the host has translated to the node's position.
type Canvas interface {
	// Save pushes the current translation.
	Save()
	// Restore pops the last saved translation.
	Restore()
	// Translate moves the origin by (dx, dy).
	Translate(dx, dy float64)
	// DrawCircle draws a circle with the provided paint.
	DrawCircle(center Offset, radius float64, paint Paint)
	// DrawText draws a single line label.
	DrawText(text string, pos Offset, style TextStyle)
}

// RGBA is a convenience for building opaque or translucent colors from the
// 0-255 channel values used in canvas style strings.
func RGBA(r, g, b uint8, alpha float64) color.NRGBA {
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}
	return color.NRGBA{R: r, G: g, B: b, A: uint8(alpha*255 + 0.5)}
}

// Hex parses "#rgb" or "#rrggbb" into an opaque color. Malformed input yields black.
func Hex(s string) color.NRGBA {
	c := color.NRGBA{A: 0xff}
	if len(s) == 0 || s[0] != '#' {
		return c
	}
	s = s[1:]
	nibble := func(b byte) uint8 {
		switch {
		case b >= '0' && b <= '9':
			return b - '0'
		case b >= 'a' && b <= 'f':
			return b - 'a' + 10
		case b >= 'A' && b <= 'F':
			return b - 'A' + 10
		}
		return 0
	}
	switch len(s) {
	case 3:
		c.R = nibble(s[0]) * 17
		c.G = nibble(s[1]) * 17
		c.B = nibble(s[2]) * 17
	case 6:
		c.R = nibble(s[0])<<4 | nibble(s[1])
		c.G = nibble(s[2])<<4 | nibble(s[3])
		c.B = nibble(s[4])<<4 | nibble(s[5])
	}
	return c
}
