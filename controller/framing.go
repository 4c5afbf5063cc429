package controller

import "github.com/mkorzunowicz/poopdetector/models/postprocess"

// FramingResult tells the user how to move the camera.
type FramingResult string

const (
	// FramingEmpty means nothing was detected.
	FramingEmpty FramingResult = "empty"
	// FramingTooSmall means the object covers too little of the frame; move closer.
	FramingTooSmall FramingResult = "too_small"
	// FramingTooBig means the object covers too much of the frame; move away.
	FramingTooBig FramingResult = "too_big"
	// FramingGood means the object is well framed.
	FramingGood FramingResult = "good"
)

// Framing bounds the share of the detector input covered by the detection.
type Framing struct {
	Min float32 `json:"min" yaml:"min"`
	Max float32 `json:"max" yaml:"max"`
	// Hold is the number of consecutive good frames before Steady reports ready.
	Hold int `json:"hold" yaml:"hold"`
}

// DefaultFraming returns the 10% to 25% window, ready on the first good frame.
func DefaultFraming() Framing {
	return Framing{Min: 0.10, Max: 0.25, Hold: 1}
}

// Ratio returns the area of the first box over the input area, or 0 when
// there are no boxes.
func (f Framing) Ratio(boxes []postprocess.BoundingBox, inputW, inputH int) float32 {
	if len(boxes) == 0 || inputW <= 0 || inputH <= 0 {
		return 0
	}
	return boxes[0].Area() / float32(inputW*inputH)
}

// Evaluate classifies the framing of boxes.
//
// Only the first box, the highest scored one, is considered. A frame with
// several objects is judged by that box alone.
//
// Arguments:
//   - boxes: Final detections in input coordinates.
//   - inputW: The detector input width.
//   - inputH: The detector input height.
//
// Returns:
//   - FramingResult: The classification.
func (f Framing) Evaluate(boxes []postprocess.BoundingBox, inputW, inputH int) FramingResult {
	if len(boxes) == 0 {
		return FramingEmpty
	}

	ratio := f.Ratio(boxes, inputW, inputH)
	switch {
	case ratio < f.Min:
		return FramingTooSmall
	case ratio > f.Max:
		return FramingTooBig
	default:
		return FramingGood
	}
}

// Steady counts consecutive good frames.
type Steady struct {
	hold  int
	count int
}

// NewSteady returns a counter that is ready after hold good frames in a row.
func NewSteady(hold int) *Steady {
	return &Steady{hold: max(hold, 1)}
}

// Observe records r and reports whether the last hold frames were all good.
func (s *Steady) Observe(r FramingResult) bool {
	if r != FramingGood {
		s.count = 0
		return false
	}
	s.count++
	return s.count >= s.hold
}

// Reset forgets the observed frames.
func (s *Steady) Reset() {
	s.count = 0
}
