package mobilesam

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/mkorzunowicz/poopdetector/images"
	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
	"github.com/pkg/errors"
)

const (
	// EncoderLongSide is the long side of the image the encoder sees.
	EncoderLongSide = 1024
	// EncoderInputName is the graph input of the image encoder.
	EncoderInputName = "input_image"
	// EmbeddingName is the encoder output and the matching decoder input.
	EmbeddingName = "image_embeddings"
	// MaskInputSize is the side of the low resolution mask prompt.
	MaskInputSize = 256
	// MaskThreshold is the probability above which a mask pixel is foreground.
	MaskThreshold float32 = 0.5
)

// EmbeddingShape is the shape of the image embedding.
var EmbeddingShape = []int64{1, 256, 64, 64}

// DecoderInputs are the graph inputs of the mask decoder, in order.
var DecoderInputs = []string{EmbeddingName, "point_coords", "point_labels", "mask_input", "has_mask_input", "orig_im_size"}

// DecoderOutputs are the graph outputs of the mask decoder.
var DecoderOutputs = []string{"masks", "iou_predictions", "low_res_masks"}

// Label is the role of a prompt point.
type Label float32

const (
	// LabelPadding marks the terminator point the decoder expects after the real points.
	LabelPadding Label = -1
	// LabelForeground marks a point on the object.
	LabelForeground Label = 1
	// LabelBoxTopLeft marks the top-left corner of a box prompt.
	LabelBoxTopLeft Label = 2
	// LabelBoxBottomRight marks the bottom-right corner of a box prompt.
	LabelBoxBottomRight Label = 3
)

// Point is a prompt coordinate in encoder space.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// EncoderSize returns the size of a w x h image once its long side is scaled
// to EncoderLongSide.
func EncoderSize(w, h int) image.Point {
	return images.FitLongSide(w, h, EncoderLongSide)
}

// EncoderLayout is the encoder input: the image scaled to EncoderSize and
// drawn at the top-left of a black 1024x1024 canvas, raw RGB, HWC.
func EncoderLayout() images.Layout {
	return images.Layout{
		Width:           EncoderLongSide,
		Height:          EncoderLongSide,
		ChannelOrder:    images.ChannelOrderHWC,
		ColorMode:       images.ColorModeRGB,
		KeepAspectRatio: true,
	}
}

// DefaultPoint returns the first prompt point of a fresh decode: the centre of
// box mapped from detector input space into encoder space, or the centre of
// the encoder image when there is no box.
//
// Arguments:
//   - box: The first detection, or nil.
//   - input: The detector input size box is expressed in.
//   - enc: The encoder size of the frame.
//
// Returns:
//   - Point: The prompt point in encoder space.
func DefaultPoint(box *postprocess.BoundingBox, input, enc image.Point) Point {
	if box == nil || input.X <= 0 || input.Y <= 0 {
		return Point{X: float32(enc.X) / 2, Y: float32(enc.Y) / 2}
	}

	sx := float32(enc.X) / float32(input.X)
	sy := float32(enc.Y) / float32(input.Y)

	x0, y0 := box.X*sx, box.Y*sy
	x1, y1 := (box.X+box.Width)*sx, (box.Y+box.Height)*sy

	return Point{X: x0 + (x1-x0)/2, Y: y0 + (y1-y0)/2}
}

// decoderInputs builds the six decoder tensors for labelled points. A padding
// point at the origin is appended after them.
func decoderInputs(embedding *inference.Tensor, points []Point, labels []Label, enc image.Point) []*inference.Tensor {
	n := len(points) + 1
	coords := make([]float32, 0, 2*n)
	lbls := make([]float32, 0, n)

	for i, p := range points {
		coords = append(coords, p.X, p.Y)
		lbls = append(lbls, float32(labels[i]))
	}
	coords = append(coords, 0, 0)
	lbls = append(lbls, float32(LabelPadding))

	return []*inference.Tensor{
		embedding,
		{Name: "point_coords", Shape: []int64{1, int64(n), 2}, Data: coords},
		{Name: "point_labels", Shape: []int64{1, int64(n)}, Data: lbls},
		{Name: "mask_input", Shape: []int64{1, 1, MaskInputSize, MaskInputSize}, Data: make([]float32, MaskInputSize*MaskInputSize)},
		{Name: "has_mask_input", Shape: []int64{1}, Data: []float32{0}},
		{Name: "orig_im_size", Shape: []int64{2}, Data: []float32{float32(enc.Y), float32(enc.X)}},
	}
}

// ThresholdMask converts mask logits into a binary mask: a pixel is
// foreground when sigmoid(logit) > MaskThreshold.
//
// Arguments:
//   - logits: Exactly w*h row-major logits.
//   - w: The mask width.
//   - h: The mask height.
//
// Returns:
//   - *postprocess.Mask: The binary mask.
//   - error: inference.ErrShapeMismatch if logits does not fill a w*h mask.
func ThresholdMask(logits []float32, w, h int) (*postprocess.Mask, error) {
	if w <= 0 || h <= 0 || len(logits) != w*h {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "%d logits for a %dx%d mask", len(logits), w, h)
	}

	m := postprocess.NewMask(w, h)
	for i := range m.Pix {
		if 1/(1+math32.Exp(-logits[i])) > MaskThreshold {
			m.Pix[i] = 255
		}
	}
	return m, nil
}
