package images

import (
	"image"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ChannelOrder defines the ordering of image channels in a tensor.
type ChannelOrder int

const (
	// ChannelOrderCHW is Channel-Height-Width ordering with a leading batch axis.
	ChannelOrderCHW ChannelOrder = iota
	// ChannelOrderHWC is Height-Width-Channel ordering without a batch axis.
	ChannelOrderHWC
)

// ColorMode defines the channel order of the colour components.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode, used by some exported detectors.
	ColorModeBGR
)

// ErrEmptyImage is returned when a frame has no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Layout describes how a frame is packed into a float32 tensor. Pixel values
// are always raw 0..255; none of the supported models normalize on input.
type Layout struct {
	// Width and Height are the tensor spatial dimensions.
	Width  int `json:"width"  yaml:"width"`
	Height int `json:"height" yaml:"height"`
	// ChannelOrder selects NCHW or HWC packing.
	ChannelOrder ChannelOrder `json:"channelOrder" yaml:"channelOrder"`
	// ColorMode selects RGB or BGR component order.
	ColorMode ColorMode `json:"colorMode" yaml:"colorMode"`
	// KeepAspectRatio scales the long side to fit and pads the rest with black,
	// anchoring the image at the top-left corner.
	KeepAspectRatio bool `json:"keepAspectRatio" yaml:"keepAspectRatio"`
}

// TensorData is a packed frame plus the geometry needed to map coordinates back.
type TensorData struct {
	// Data is the packed pixel data.
	Data []float32
	// Shape is [1,3,H,W] for CHW or [H,W,3] for HWC.
	Shape []int64
	// OriginalWidth and OriginalHeight are the source frame dimensions.
	OriginalWidth  int
	OriginalHeight int
	// ResizedWidth and ResizedHeight are the dimensions of the scaled image
	// inside the tensor, before padding.
	ResizedWidth  int
	ResizedHeight int
}

// ScaleX returns resized width / original width.
func (t *TensorData) ScaleX() float32 {
	return float32(t.ResizedWidth) / float32(t.OriginalWidth)
}

// ScaleY returns resized height / original height.
func (t *TensorData) ScaleY() float32 {
	return float32(t.ResizedHeight) / float32(t.OriginalHeight)
}

// FitLongSide returns the size of a w x h image scaled so that its long side
// equals target, rounding the short side to the nearest pixel.
//
// Arguments:
//   - w: The source width.
//   - h: The source height.
//   - target: The desired long side.
//
// Returns:
//   - image.Point: The scaled width (X) and height (Y).
func FitLongSide(w, h, target int) image.Point {
	if w <= 0 || h <= 0 {
		return image.Point{}
	}
	if w >= h {
		return image.Point{
			X: target,
			Y: int(math.Round(float64(h) / float64(w) * float64(target))),
		}
	}
	return image.Point{
		X: int(math.Round(float64(w) / float64(h) * float64(target))),
		Y: target,
	}
}

// ToTensor resizes img and packs it according to layout.
//
// Arguments:
//   - img: The source frame.
//   - layout: The target tensor layout.
//
// Returns:
//   - *TensorData: The packed tensor and its geometry.
//   - error: ErrEmptyImage for an empty frame, or an error for an invalid layout.
func ToTensor(img image.Image, layout Layout) (*TensorData, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	if layout.Width <= 0 || layout.Height <= 0 {
		return nil, errors.Errorf("invalid tensor layout %dx%d", layout.Width, layout.Height)
	}

	bounds := img.Bounds()
	size := image.Point{X: layout.Width, Y: layout.Height}
	if layout.KeepAspectRatio {
		size = FitLongSide(bounds.Dx(), bounds.Dy(), max(layout.Width, layout.Height))
		size.X = min(size.X, layout.Width)
		size.Y = min(size.Y, layout.Height)
	}

	resized := img
	if size.X != bounds.Dx() || size.Y != bounds.Dy() {
		resized = resize.Resize(uint(size.X), uint(size.Y), img, resize.Bilinear)
	}

	out := &TensorData{
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
		ResizedWidth:   size.X,
		ResizedHeight:  size.Y,
	}

	plane := layout.Width * layout.Height
	out.Data = make([]float32, plane*3)

	rb := resized.Bounds()
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			c0, c1, c2 := float32(r>>8), float32(g>>8), float32(b>>8)
			if layout.ColorMode == ColorModeBGR {
				c0, c2 = c2, c0
			}

			i := y*layout.Width + x
			switch layout.ChannelOrder {
			case ChannelOrderHWC:
				out.Data[i*3] = c0
				out.Data[i*3+1] = c1
				out.Data[i*3+2] = c2
			default:
				out.Data[i] = c0
				out.Data[plane+i] = c1
				out.Data[2*plane+i] = c2
			}
		}
	}

	if layout.ChannelOrder == ChannelOrderHWC {
		out.Shape = []int64{int64(layout.Height), int64(layout.Width), 3}
	} else {
		out.Shape = []int64{1, 3, int64(layout.Height), int64(layout.Width)}
	}

	return out, nil
}
