package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestFitLongSide(t *testing.T) {
	tests := []struct {
		name     string
		w, h     int
		expected image.Point
	}{
		{name: "Landscape", w: 1920, h: 1080, expected: image.Point{X: 1024, Y: 576}},
		{name: "Portrait", w: 1080, h: 1920, expected: image.Point{X: 576, Y: 1024}},
		{name: "Square", w: 500, h: 500, expected: image.Point{X: 1024, Y: 1024}},
		{name: "Rounded", w: 640, h: 481, expected: image.Point{X: 1024, Y: 770}},
		{name: "Empty", w: 0, h: 10, expected: image.Point{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FitLongSide(tt.w, tt.h, 1024))
		})
	}
}

func TestToTensor_CHW_RGB(t *testing.T) {
	img := solidImage(8, 4, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	out, err := ToTensor(img, Layout{Width: 8, Height: 4})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 4, 8}, out.Shape)
	require.Len(t, out.Data, 3*4*8)

	plane := 4 * 8
	assert.Equal(t, float32(10), out.Data[0])
	assert.Equal(t, float32(20), out.Data[plane])
	assert.Equal(t, float32(30), out.Data[2*plane])
	assert.Equal(t, float32(1), out.ScaleX())
	assert.Equal(t, float32(1), out.ScaleY())
}

func TestToTensor_BGRSwapsChannels(t *testing.T) {
	img := solidImage(4, 4, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	out, err := ToTensor(img, Layout{Width: 4, Height: 4, ColorMode: ColorModeBGR})
	require.NoError(t, err)

	plane := 16
	assert.Equal(t, float32(50), out.Data[0], "first plane must hold blue")
	assert.Equal(t, float32(100), out.Data[plane])
	assert.Equal(t, float32(200), out.Data[2*plane], "last plane must hold red")
}

func TestToTensor_HWCPadded(t *testing.T) {
	img := solidImage(20, 10, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	out, err := ToTensor(img, Layout{
		Width:           16,
		Height:          16,
		ChannelOrder:    ChannelOrderHWC,
		KeepAspectRatio: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{16, 16, 3}, out.Shape)
	assert.Equal(t, 16, out.ResizedWidth)
	assert.Equal(t, 8, out.ResizedHeight)

	// Top-left is image content, the bottom half is black padding.
	assert.InDelta(t, float32(255), out.Data[0], 1)
	last := (15*16 + 15) * 3
	assert.Equal(t, float32(0), out.Data[last])
	assert.Equal(t, float32(0), out.Data[last+2])
}

func TestToTensor_Errors(t *testing.T) {
	_, err := ToTensor(image.NewRGBA(image.Rect(0, 0, 0, 0)), Layout{Width: 4, Height: 4})
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = ToTensor(solidImage(2, 2, color.RGBA{}), Layout{})
	assert.Error(t, err)
}
