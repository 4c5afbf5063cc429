package yolox

import (
	"github.com/chewxy/math32"
	"github.com/mkorzunowicz/poopdetector/images"
	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
	"github.com/pkg/errors"
)

// BoxFields is the number of per-anchor values before the class scores:
// dx, dy, dw, dh and objectness.
const BoxFields = 5

// DefaultConfidenceThreshold is the probability an anchor must exceed to be proposed.
const DefaultConfidenceThreshold float32 = 0.7

// GenerateProposals decodes a flat YOLOX output into scored boxes.
//
// Anchor i reads output[i*(numClasses+5):] as [dx, dy, dw, dh, objectness,
// class scores...] and is mapped to grid[i]. Only the best class is kept per
// anchor, scored objectness*classScore. Anchors whose best score does not
// exceed threshold are dropped.
//
// Arguments:
//   - output: The raw output of the network.
//   - grid: The grid of the network input resolution.
//   - numClasses: The number of classes the network predicts.
//   - threshold: The confidence threshold.
//
// Returns:
//   - []images.Box2D: The proposals sorted by descending score.
//   - error: inference.ErrShapeMismatch unless output holds exactly len(grid)
//     anchors of numClasses+5 values.
func GenerateProposals(output []float32, grid []GridCell, numClasses int, threshold float32) ([]images.Box2D, error) {
	if numClasses <= 0 {
		return nil, errors.Errorf("invalid class count %d", numClasses)
	}

	stride := numClasses + BoxFields
	if len(output) != len(grid)*stride {
		return nil, errors.Wrapf(inference.ErrShapeMismatch,
			"output has %d values, grid of %d anchors with %d classes needs %d", len(output), len(grid), numClasses, len(grid)*stride)
	}

	proposals := make([]images.Box2D, 0, 64)
	for i, cell := range grid {
		p := output[i*stride : (i+1)*stride]
		s := float32(cell.Stride)

		cx := (p[0] + float32(cell.Col)) * s
		cy := (p[1] + float32(cell.Row)) * s
		w := math32.Exp(p[2]) * s
		h := math32.Exp(p[3]) * s

		box := images.Box2D{X0: cx - w*0.5, Y0: cy - h*0.5, Width: w, Height: h}

		objectness := p[4]
		for c := 0; c < numClasses; c++ {
			prob := objectness * p[BoxFields+c]
			if prob > box.Score {
				box.Class = c
				box.Score = prob
			}
		}

		if box.Score > threshold {
			proposals = append(proposals, box)
		}
	}

	postprocess.SortByScore(proposals)
	return proposals, nil
}

// checkShape verifies that a [1, anchors, numClasses+5] output matches the
// grid. A flat output is left to the length check of GenerateProposals.
func checkShape(t *inference.Tensor, anchors, numClasses int) error {
	if err := t.Validate(); err != nil {
		return err
	}
	dims := t.Dims()
	if len(dims) < 2 {
		return nil
	}

	n := 1
	for _, d := range dims[:len(dims)-1] {
		n *= d
	}
	if dims[len(dims)-1] != numClasses+BoxFields || n != anchors {
		return errors.Wrapf(inference.ErrShapeMismatch,
			"%s: shape %v, expected [1 %d %d]", t.Name, t.Shape, anchors, numClasses+BoxFields)
	}
	return nil
}
