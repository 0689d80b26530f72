package graphapi

import (
	"encoding/json"
	"strconv"
)

// Pos is a point in graph space. Workflows store it as a two element array.
type Pos struct {
	X float64
	Y float64
}

func (p *Pos) UnmarshalJSON(b []byte) error {
	x, y, err := decodePair(b)
	if err != nil {
		return err
	}
	p.X, p.Y = x, y
	return nil
}

// we always write positions back as an array, regardless of how they were read
func (p Pos) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{p.X, p.Y})
}

// Size is a node's width and height
type Size struct {
	Width  float64
	Height float64
}

func (s *Size) UnmarshalJSON(b []byte) error {
	w, h, err := decodePair(b)
	if err != nil {
		return err
	}
	s.Width, s.Height = w, h
	return nil
}

func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{s.Width, s.Height})
}

// decodePair reads either [a, b] or {"0": a, "1": b}. Older workflows
// saved by the frontend contain both forms.
func decodePair(b []byte) (float64, float64, error) {
	var arr []interface{}
	if err := json.Unmarshal(b, &arr); err == nil {
		var a, c float64
		if len(arr) > 0 {
			a = toFloat(arr[0])
		}
		if len(arr) > 1 {
			c = toFloat(arr[1])
		}
		return a, c, nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return 0, 0, err
	}
	return toFloat(m["0"]), toFloat(m["1"]), nil
}

func toFloat(v interface{}) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case int:
		return float64(value)
	case string:
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return 0
}
