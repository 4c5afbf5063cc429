// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/mkorzunowicz/poopdetector/images"
)

// Policy selects the NMS variant.
type Policy string

const (
	// PolicyIndexed keeps a box if its IoU against every kept box is within the threshold.
	PolicyIndexed Policy = "indexed"
	// PolicyOptimized is PolicyIndexed with an early exit and no union for disjoint boxes.
	PolicyOptimized Policy = "optimized"
	// PolicyClassAware only suppresses boxes of the same class.
	PolicyClassAware Policy = "class_aware"
)

// DefaultIoUThreshold is the overlap above which a lower scored box is suppressed.
const DefaultIoUThreshold float32 = 0.45

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	Policy       Policy  `json:"policy"       yaml:"policy"`
	IoUThreshold float32 `json:"iouThreshold" yaml:"iouThreshold"`
}

// DefaultNMSConfig returns the optimized policy at DefaultIoUThreshold.
func DefaultNMSConfig() *NMSConfig {
	return &NMSConfig{Policy: PolicyOptimized, IoUThreshold: DefaultIoUThreshold}
}

// ApplyNMS filters score-sorted boxes with the configured policy.
//
// Arguments:
//   - boxes: Boxes sorted by descending score.
//   - config: NMS configuration; nil means DefaultNMSConfig.
//
// Returns:
//   - []images.Box2D: The kept boxes in input order. Empty input yields an empty result.
func ApplyNMS(boxes []images.Box2D, config *NMSConfig) []images.Box2D {
	if config == nil {
		config = DefaultNMSConfig()
	}

	switch config.Policy {
	case PolicyIndexed:
		idx := NMSSortedIndices(boxes, config.IoUThreshold)
		kept := make([]images.Box2D, len(idx))
		for i, j := range idx {
			kept[i] = boxes[j]
		}
		return kept
	case PolicyClassAware:
		return nmsSameClass(boxes, config.IoUThreshold)
	default:
		return NMSSortedBoxes(boxes, config.IoUThreshold)
	}
}

// NMSSortedIndices performs greedy NMS on score-sorted boxes and returns the
// indices of the kept boxes.
//
// A box is kept when IoU <= threshold against every box kept so far. Pairs
// whose enclosing rectangle has zero area (two identical zero-size boxes)
// have no defined IoU and never suppress.
//
// Arguments:
//   - boxes: Boxes sorted by descending score.
//   - threshold: The IoU threshold.
//
// Returns:
//   - []int: Indices into boxes, ascending.
func NMSSortedIndices(boxes []images.Box2D, threshold float32) []int {
	kept := make([]int, 0, len(boxes))

	for i, a := range boxes {
		keep := true
		for _, j := range kept {
			b := boxes[j]
			union := images.UnionArea(a, b)
			if union == 0 {
				continue
			}
			if images.IntersectionArea(a, b)/union > threshold {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, i)
		}
	}

	return kept
}

// NMSSortedBoxes performs greedy NMS on score-sorted boxes and returns the kept
// boxes. The union is only computed for overlapping pairs and the scan stops at
// the first violation.
//
// Arguments:
//   - boxes: Boxes sorted by descending score.
//   - threshold: The IoU threshold.
//
// Returns:
//   - []images.Box2D: The kept boxes.
func NMSSortedBoxes(boxes []images.Box2D, threshold float32) []images.Box2D {
	kept := make([]images.Box2D, 0, len(boxes)/2)

	for _, a := range boxes {
		keep := true
		for _, b := range kept {
			inter := images.IntersectionArea(a, b)
			if inter > 0 && inter/images.UnionArea(a, b) > threshold {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, a)
		}
	}

	return kept
}

func nmsSameClass(boxes []images.Box2D, threshold float32) []images.Box2D {
	kept := make([]images.Box2D, 0, len(boxes))

	for _, a := range boxes {
		keep := true
		for _, b := range kept {
			if a.Class != b.Class {
				continue
			}
			inter := images.IntersectionArea(a, b)
			if inter > 0 && inter/images.UnionArea(a, b) > threshold {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, a)
		}
	}

	return kept
}

// CandidateIoU is the set-union IoU of two corner-anchored candidates. The
// small epsilon keeps zero-area pairs at 0 instead of NaN.
func CandidateIoU(a, b Candidate) float32 {
	iw := math32.Max(0, math32.Min(a.X1, b.X1)-math32.Max(a.X0, b.X0))
	ih := math32.Max(0, math32.Min(a.Y1, b.Y1)-math32.Max(a.Y0, b.Y0))
	inter := iw * ih

	return inter / (a.Area() + b.Area() - inter + 1e-6)
}

// NMSClassAware sorts candidates by descending score and suppresses a
// candidate only when a kept candidate of the same label overlaps it by more
// than threshold.
//
// Arguments:
//   - candidates: Candidates in any order. The slice is not modified.
//   - threshold: The IoU threshold.
//
// Returns:
//   - []Candidate: The kept candidates, highest score first.
func NMSClassAware(candidates []Candidate, threshold float32) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	kept := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		discard := false
		for _, k := range kept {
			if k.Label == c.Label && CandidateIoU(k, c) > threshold {
				discard = true
				break
			}
		}
		if !discard {
			kept = append(kept, c)
		}
	}

	return kept
}

// SortByScore orders boxes by descending score, keeping the relative order of ties.
func SortByScore(boxes []images.Box2D) {
	sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].Score > boxes[j].Score })
}
