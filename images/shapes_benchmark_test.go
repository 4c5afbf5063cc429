package images

import (
	"math/rand"
	"testing"
)

// Benchmark cases covering IoU of disjoint, identical and partially
// overlapping boxes, the three paths NMS takes.

// BenchmarkIoU_NonOverlapping tests boxes that don't overlap.
// IntersectionArea returns early when the overlap width or height is not positive.
func BenchmarkIoU_NonOverlapping(b *testing.B) {
	a := Box2D{X0: 0, Y0: 0, Width: 100, Height: 100}
	c := Box2D{X0: 200, Y0: 200, Width: 100, Height: 100}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = IoU(a, c)
	}
}

// BenchmarkIoU_FullOverlap tests identical boxes (IoU = 1.0).
func BenchmarkIoU_FullOverlap(b *testing.B) {
	a := Box2D{X0: 50, Y0: 50, Width: 100, Height: 100}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = IoU(a, a)
	}
}

// BenchmarkIoU_PartialOverlap tests the common case of a duplicate detection
// shifted by half its size.
func BenchmarkIoU_PartialOverlap(b *testing.B) {
	a := Box2D{X0: 0, Y0: 0, Width: 100, Height: 100}
	c := Box2D{X0: 50, Y0: 50, Width: 100, Height: 100}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = IoU(a, c)
	}
}

// BenchmarkIoU_RandomPairs benchmarks random box pairs within a 416x416 input.
func BenchmarkIoU_RandomPairs(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	pairs := make([][2]Box2D, 1000)
	for i := range pairs {
		for j := range pairs[i] {
			pairs[i][j] = Box2D{
				X0:     float32(r.Intn(416)),
				Y0:     float32(r.Intn(416)),
				Width:  float32(r.Intn(200) + 10),
				Height: float32(r.Intn(200) + 10),
			}
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := pairs[i%len(pairs)]
		_ = IoU(p[0], p[1])
	}
}
