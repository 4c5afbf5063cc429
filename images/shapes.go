// Package images - Image processing utilities
package images

import "github.com/chewxy/math32"

// Box2D is a top-left anchored float rectangle produced by a detector head.
//
// Score and Class are updated while a proposal is decoded, as higher
// probability classes are found for the same spatial location.
type Box2D struct {
	X0     float32
	Y0     float32
	Width  float32
	Height float32
	// Class is the index of the best scoring class.
	Class int
	// Score is the probability of Class.
	Score float32
}

// X1 returns the right edge of the box.
func (b Box2D) X1() float32 { return b.X0 + b.Width }

// Y1 returns the bottom edge of the box.
func (b Box2D) Y1() float32 { return b.Y0 + b.Height }

// Area returns width * height.
func (b Box2D) Area() float32 { return b.Width * b.Height }

// Center returns the midpoint of the box.
func (b Box2D) Center() (float32, float32) {
	return b.X0 + b.Width/2, b.Y0 + b.Height/2
}

// IntersectionArea returns the area of the overlap rectangle of a and b.
//
// The overlap starts at the larger of the two top-left corners and ends at the
// smaller of the two bottom-right corners. A negative extent on either axis
// means the boxes are disjoint and the area is 0.
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float32: The overlap area, or 0 when the boxes do not overlap.
func IntersectionArea(a, b Box2D) float32 {
	x := math32.Max(a.X0, b.X0)
	y := math32.Max(a.Y0, b.Y0)
	w := math32.Min(a.X1(), b.X1()) - x
	h := math32.Min(a.Y1(), b.Y1()) - y

	if w < 0 || h < 0 {
		return 0
	}

	return w * h
}

// UnionArea returns the area of the smallest rectangle enclosing both a and b.
//
// This is not the set union areaA+areaB-intersection. NMS thresholds in this
// module were tuned against the enclosing rectangle, so the definition must
// stay as is.
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float32: The enclosing rectangle area.
func UnionArea(a, b Box2D) float32 {
	x := math32.Min(a.X0, b.X0)
	y := math32.Min(a.Y0, b.Y0)
	w := math32.Max(a.X1(), b.X1()) - x
	h := math32.Max(a.Y1(), b.Y1()) - y

	return w * h
}

// IoU returns IntersectionArea / UnionArea.
//
// Two zero-size boxes at the same location yield 0/0, which is NaN. Callers
// that compare the result against a threshold must decide how NaN is treated;
// see the NMS policies in models/postprocess.
//
// Example:
//
// ```go
//
//	a := images.Box2D{X0: 0, Y0: 0, Width: 10, Height: 10}
//	b := images.Box2D{X0: 5, Y0: 5, Width: 10, Height: 10}
//
//	// intersection is 5x5=25, enclosing rectangle is 15x15=225.
//	fmt.Println(images.IoU(a, b)) // 0.11111111
//
// ```
func IoU(a, b Box2D) float32 {
	return IntersectionArea(a, b) / UnionArea(a, b)
}
