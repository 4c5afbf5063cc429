package postprocess

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMaskToPolygons_TwoSquares verifies that two disjoint squares at opposite
// corners produce one polygon each, in raster order.
//
// @example
// go test -v -run TestMaskToPolygons_TwoSquares
func TestMaskToPolygons_TwoSquares(t *testing.T) {
	m := NewMask(100, 100)
	m.Fill(image.Rect(0, 0, 10, 10))
	m.Fill(image.Rect(90, 90, 100, 100))

	polys := MaskToPolygons(m, 100, 100)

	require.Len(t, polys, 2)
	assert.ElementsMatch(t, Polygon{{0, 0}, {9, 0}, {9, 9}, {0, 9}}, polys[0])
	assert.ElementsMatch(t, Polygon{{90, 90}, {99, 90}, {99, 99}, {90, 99}}, polys[1])
}

func TestMaskToPolygons_ScalesToOriginal(t *testing.T) {
	tests := []struct {
		name         string
		rect         image.Rectangle
		origW, origH int
	}{
		{name: "upscale", rect: image.Rect(64, 32, 128, 96), origW: 1920, origH: 1080},
		{name: "identity", rect: image.Rect(10, 20, 200, 100), origW: 256, origH: 256},
		{name: "downscale", rect: image.Rect(100, 100, 150, 250), origW: 128, origH: 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMask(256, 256)
			m.Fill(tt.rect)

			polys := MaskToPolygons(m, tt.origW, tt.origH)
			require.Len(t, polys, 1)

			sx := float64(tt.origW) / 256
			sy := float64(tt.origH) / 256
			b := polys[0].Bounds()

			assert.InDelta(t, float64(tt.rect.Min.X)*sx, b.Min.X, sx+1)
			assert.InDelta(t, float64(tt.rect.Min.Y)*sy, b.Min.Y, sy+1)
			assert.InDelta(t, float64(tt.rect.Max.X)*sx, b.Max.X, sx+1)
			assert.InDelta(t, float64(tt.rect.Max.Y)*sy, b.Max.Y, sy+1)
		})
	}
}

func TestMaskToPolygons_DropsDegenerate(t *testing.T) {
	tests := []struct {
		name string
		fill image.Rectangle
	}{
		{name: "single pixel", fill: image.Rect(5, 5, 6, 6)},
		{name: "horizontal line", fill: image.Rect(2, 4, 12, 5)},
		{name: "vertical line", fill: image.Rect(7, 1, 8, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMask(16, 16)
			m.Fill(tt.fill)
			assert.Empty(t, MaskToPolygons(m, 16, 16))
		})
	}
}

func TestMaskToPolygons_EmptyMask(t *testing.T) {
	assert.Empty(t, MaskToPolygons(NewMask(32, 32), 640, 480))
	assert.Empty(t, MaskToPolygons(nil, 640, 480))
	assert.Empty(t, MaskToPolygons(NewMask(0, 0), 640, 480))
}

func TestMaskToPolygons_DiagonalPixelsAreSeparateBlobs(t *testing.T) {
	m := NewMask(8, 8)
	m.Fill(image.Rect(0, 0, 3, 3))
	m.Fill(image.Rect(3, 3, 6, 6))

	assert.Len(t, MaskToPolygons(m, 8, 8), 2)
	assert.Len(t, FindContours(m, 8, 8), 1, "8-connectivity joins corner-touching blobs")
}

func TestConvexHull(t *testing.T) {
	pts := []image.Point{{0, 0}, {2, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 0}, {1, 2}}
	hull := ConvexHull(pts)

	assert.Equal(t, []image.Point{{0, 0}, {2, 0}, {2, 2}, {0, 2}}, hull)
	assert.Nil(t, ConvexHull(nil))
}

func TestFindContours(t *testing.T) {
	m := NewMask(20, 20)
	m.Fill(image.Rect(2, 2, 12, 12))
	m.Set(18, 18)

	polys := FindContours(m, 20, 20)

	require.Len(t, polys, 1, "single pixel blob is dropped")
	assert.Len(t, polys[0], 36)
	for _, p := range polys[0] {
		onEdge := p.X == 2 || p.X == 11 || p.Y == 2 || p.Y == 11
		assert.True(t, onEdge, "interior pixel %v reported as boundary", p)
	}
}

func TestPolygon_Flat(t *testing.T) {
	p := Polygon{{1, 2}, {3, 4}, {5, 6}}
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, p.Flat())
	assert.Empty(t, Polygon{}.Flat())
}

func TestMask_Validate(t *testing.T) {
	assert.NoError(t, NewMask(4, 3).Validate())
	assert.Error(t, (&Mask{Width: 4, Height: 3, Pix: make([]uint8, 11)}).Validate())
}

func TestSegmentation_JSON(t *testing.T) {
	seg := NewSegmentation([]Polygon{{{0, 0}, {9, 0}, {9, 9}}})
	b, err := seg.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"segmentation":[[0,0,9,0,9,9]]}`, string(b))

	b, err = NewSegmentation(nil).JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"segmentation":[]}`, string(b))
}

func TestBoxesJSON(t *testing.T) {
	b, err := BoxesJSON([]BoundingBox{{X: 1, Y: 2, Width: 3, Height: 4, Score: 0.5, Label: "poop"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"x":1,"y":2,"w":3,"h":4,"c":0.5}]`, string(b))

	b, err = BoxesJSON(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))
}

func TestBoundingBox_Labels(t *testing.T) {
	labels := []Label{{Name: "poop"}, {Name: "dog"}}

	assert.Equal(t, "dog", FromCandidate(Candidate{Label: 3}, labels).Label)
	assert.Equal(t, "poop", FromCandidate(Candidate{Label: -2}, labels).Label)

	bb := FromCandidate(Candidate{X0: 1, Y0: 2, X1: 11, Y1: 7, Score: 0.87}, labels)
	assert.Equal(t, float32(10), bb.Width)
	assert.Equal(t, float32(5), bb.Height)
	assert.Equal(t, "poop (87%)", bb.Description())
}
