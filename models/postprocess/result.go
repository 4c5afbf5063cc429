// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"fmt"
	"image/color"

	json "github.com/goccy/go-json"
	"github.com/mkorzunowicz/poopdetector/images"
)

// Candidate is a corner-anchored detection produced while decoding a
// multi-tensor head. It only lives until NMS.
type Candidate struct {
	X0, Y0, X1, Y1 float32
	Score          float32
	Label          int
}

// Area returns the candidate area.
func (c Candidate) Area() float32 {
	return (c.X1 - c.X0) * (c.Y1 - c.Y0)
}

// Label is a class name with its display colour.
type Label struct {
	Name  string     `json:"name"  yaml:"name"`
	Color color.RGBA `json:"color" yaml:"color"`
}

// BoundingBox is the final output of the detection pipeline, in detector
// input coordinates.
type BoundingBox struct {
	X      float32
	Y      float32
	Width  float32
	Height float32
	Label  string
	Score  float32
	Color  color.RGBA
}

// Area returns width * height.
func (b BoundingBox) Area() float32 {
	return b.Width * b.Height
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (float32, float32) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Description returns a display string such as "poop (87%)".
func (b BoundingBox) Description() string {
	return fmt.Sprintf("%s (%.0f%%)", b.Label, b.Score*100)
}

// Scale returns the box mapped by independent x and y factors.
func (b BoundingBox) Scale(sx, sy float32) BoundingBox {
	b.X *= sx
	b.Y *= sy
	b.Width *= sx
	b.Height *= sy
	return b
}

type boundingBoxJSON struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	W float32 `json:"w"`
	H float32 `json:"h"`
	C float32 `json:"c"`
}

// MarshalJSON encodes the box as {"x","y","w","h","c"} where c is the score.
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(boundingBoxJSON{X: b.X, Y: b.Y, W: b.Width, H: b.Height, C: b.Score})
}

// FromBox2D converts a decoded proposal into a final box using labels for
// name and colour. Out of range classes wrap around.
func FromBox2D(b images.Box2D, labels []Label) BoundingBox {
	out := BoundingBox{
		X:      b.X0,
		Y:      b.Y0,
		Width:  b.Width,
		Height: b.Height,
		Score:  b.Score,
	}
	if len(labels) > 0 {
		l := labels[wrap(b.Class, len(labels))]
		out.Label, out.Color = l.Name, l.Color
	}
	return out
}

// FromCandidate converts a corner-anchored candidate into a final box.
func FromCandidate(c Candidate, labels []Label) BoundingBox {
	out := BoundingBox{
		X:      c.X0,
		Y:      c.Y0,
		Width:  c.X1 - c.X0,
		Height: c.Y1 - c.Y0,
		Score:  c.Score,
	}
	if len(labels) > 0 {
		l := labels[wrap(c.Label, len(labels))]
		out.Label, out.Color = l.Name, l.Color
	}
	return out
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
