// Package mobilesam - Prompted segmentation with the MobileSAM encoder/decoder pair.
//
// A frame is encoded once into an image embedding. Each decode turns the
// accumulated prompt points into a mask and the polygons around its blobs.
package mobilesam

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/inference/providers"
	"github.com/mkorzunowicz/poopdetector/models/model"
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrInvalidState is returned when decoding before any frame was encoded.
var ErrInvalidState = errors.New("mobilesam: no image encoded")

// Args locates the two networks.
type Args struct {
	EncoderPath string `json:"encoderPath" yaml:"encoderPath"`
	DecoderPath string `json:"decoderPath" yaml:"decoderPath"`
}

// Prompt is the input of one decode.
type Prompt struct {
	// Point is added to the current points. When nil the points are reset to
	// DefaultPoint of Box.
	Point *Point
	// Box is the first detection of the frame, in InputSize coordinates.
	Box *postprocess.BoundingBox
	// InputSize is the detector input size Box is expressed in.
	InputSize image.Point
}

// Result is the output of one decode.
type Result struct {
	// Mask is the binary mask in encoder resolution.
	Mask *postprocess.Mask
	// Polygons outline the mask blobs in original frame coordinates.
	Polygons []postprocess.Polygon
	// Points are the prompt points the mask was decoded from.
	Points []Point
}

// Segmenter holds the sessions and the prompt state of the last encoded frame.
type Segmenter struct {
	encoder *model.Handle
	decoder *model.Handle
	logger  *zap.Logger

	mu        sync.Mutex
	embedding *inference.Tensor
	origSize  image.Point
	encSize   image.Point
	points    []Point
	mask      *postprocess.Mask
}

// NewSegmenter opens the encoder and decoder sessions.
//
// Arguments:
//   - args: The two model files.
//   - backend: Where and how the sessions run.
//
// Returns:
//   - *Segmenter: The segmenter, with no frame encoded.
//   - error: An error if a path is missing or a session cannot be created.
func NewSegmenter(args Args, backend model.Backend) (*Segmenter, error) {
	if args.EncoderPath == "" || args.DecoderPath == "" {
		return nil, errors.New("mobilesam requires an encoder and a decoder path")
	}

	name := string(model.ModelNameMobileSAM)
	s := &Segmenter{logger: backend.Logger}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("segmenter", name))

	var err error
	s.encoder, err = backend.Open(name+"/encoder", providers.RunnerArgs{
		ModelPath: args.EncoderPath,
		Inputs:    []string{EncoderInputName},
		Outputs:   []string{EmbeddingName},
	})
	if err != nil {
		return nil, err
	}

	s.decoder, err = backend.Open(name+"/decoder", providers.RunnerArgs{
		ModelPath: args.DecoderPath,
		Inputs:    DecoderInputs,
		Outputs:   DecoderOutputs,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Encode computes the embedding of img and drops the prompts of the previous frame.
func (s *Segmenter) Encode(ctx context.Context, img image.Image) error {
	start := time.Now()

	in, data, err := model.ToInput(EncoderInputName, img, EncoderLayout())
	if err != nil {
		return err
	}

	out, err := s.encoder.Run(ctx, in)
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	emb, err := out.Get(EmbeddingName)
	if err != nil {
		emb, err = out.At(0)
		if err != nil {
			return err
		}
	}
	if int64(len(emb.Data)) != inference.ShapeSize(EmbeddingShape) {
		return errors.Wrapf(inference.ErrShapeMismatch, "embedding has %d values, expected shape %v", len(emb.Data), EmbeddingShape)
	}

	s.mu.Lock()
	s.embedding = &inference.Tensor{Name: EmbeddingName, Shape: EmbeddingShape, Data: emb.Data}
	s.origSize = image.Point{X: data.OriginalWidth, Y: data.OriginalHeight}
	s.encSize = image.Point{X: data.ResizedWidth, Y: data.ResizedHeight}
	s.points = nil
	s.mask = nil
	s.mu.Unlock()

	s.logger.Debug("encode",
		zap.Int("width", data.OriginalWidth), zap.Int("height", data.OriginalHeight),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// CanDecode reports whether a frame has been encoded.
func (s *Segmenter) CanDecode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedding != nil
}

// Decode segments the encoded frame from the prompt points.
//
// A prompt with a Point appends it to the current points. A prompt without
// one replaces the points with DefaultPoint of its Box.
//
// Arguments:
//   - ctx: Cancels waiting for the decoder.
//   - prompt: The point or box to segment from.
//
// Returns:
//   - *Result: The mask, its polygons and the points used.
//   - error: ErrInvalidState before the first Encode, or an inference error.
func (s *Segmenter) Decode(ctx context.Context, prompt Prompt) (*Result, error) {
	s.mu.Lock()
	if s.embedding == nil {
		s.mu.Unlock()
		return nil, ErrInvalidState
	}
	if prompt.Point != nil {
		s.points = append(s.points, *prompt.Point)
	} else {
		s.points = []Point{DefaultPoint(prompt.Box, prompt.InputSize, s.encSize)}
	}
	points := append([]Point(nil), s.points...)
	emb, enc, orig := s.embedding, s.encSize, s.origSize
	s.mu.Unlock()

	labels := make([]Label, len(points))
	for i := range labels {
		labels[i] = LabelForeground
	}

	res, err := s.run(ctx, emb, points, labels, enc, orig)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.embedding == emb {
		s.mask = res.Mask
	}
	s.mu.Unlock()
	return res, nil
}

// DecodeBox segments the encoded frame from a box prompt. box is in input
// coordinates. The current points are left untouched.
func (s *Segmenter) DecodeBox(ctx context.Context, box postprocess.BoundingBox, input image.Point) (*Result, error) {
	s.mu.Lock()
	if s.embedding == nil {
		s.mu.Unlock()
		return nil, ErrInvalidState
	}
	emb, enc, orig := s.embedding, s.encSize, s.origSize
	s.mu.Unlock()

	if input.X <= 0 || input.Y <= 0 {
		return nil, errors.Errorf("invalid input size %dx%d", input.X, input.Y)
	}
	sx := float32(enc.X) / float32(input.X)
	sy := float32(enc.Y) / float32(input.Y)
	corners := []Point{
		{X: box.X * sx, Y: box.Y * sy},
		{X: (box.X + box.Width) * sx, Y: (box.Y + box.Height) * sy},
	}

	return s.run(ctx, emb, corners, []Label{LabelBoxTopLeft, LabelBoxBottomRight}, enc, orig)
}

func (s *Segmenter) run(ctx context.Context, emb *inference.Tensor, points []Point, labels []Label, enc, orig image.Point) (*Result, error) {
	start := time.Now()

	out, err := s.decoder.Run(ctx, decoderInputs(emb, points, labels, enc)...)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	masks, err := out.Find("masks")
	if err != nil {
		return nil, err
	}
	if err := masks.Validate(); err != nil {
		return nil, err
	}
	dims := masks.Dims()
	if len(dims) < 2 {
		return nil, errors.Wrapf(inference.ErrShapeMismatch, "%s: shape %v", masks.Name, masks.Shape)
	}
	h, w := dims[len(dims)-2], dims[len(dims)-1]

	// The first mask of the batch.
	mask, err := ThresholdMask(masks.Data[:w*h], w, h)
	if err != nil {
		return nil, err
	}
	polys := postprocess.MaskToPolygons(mask, orig.X, orig.Y)

	s.logger.Debug("decode",
		zap.Int("points", len(points)), zap.Int("polygons", len(polys)),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{Mask: mask, Polygons: polys, Points: points}, nil
}

// ClearPrompts drops the points and the last mask. The embedding is kept.
func (s *Segmenter) ClearPrompts() {
	s.mu.Lock()
	s.points = nil
	s.mask = nil
	s.mu.Unlock()
}

// Points returns a copy of the current prompt points.
func (s *Segmenter) Points() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Point(nil), s.points...)
}

// Mask returns the mask of the last point decode, or nil.
func (s *Segmenter) Mask() *postprocess.Mask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mask
}

// ToEncoder maps a point in original frame coordinates into encoder space.
func (s *Segmenter) ToEncoder(p image.Point) (Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedding == nil || s.origSize.X == 0 || s.origSize.Y == 0 {
		return Point{}, ErrInvalidState
	}
	return Point{
		X: float32(p.X) * float32(s.encSize.X) / float32(s.origSize.X),
		Y: float32(p.Y) * float32(s.encSize.Y) / float32(s.origSize.Y),
	}, nil
}

// Reconfigure rebuilds both sessions on provider p.
func (s *Segmenter) Reconfigure(p providers.Provider) *inference.Task {
	return inference.All(s.encoder.Reconfigure(p), s.decoder.Reconfigure(p))
}

// Close releases both sessions.
func (s *Segmenter) Close() error {
	var first error
	for _, h := range []*model.Handle{s.encoder, s.decoder} {
		if h == nil {
			continue
		}
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
