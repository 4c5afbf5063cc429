// Package controller - This file contains the controller that routes camera frames through detection and segmentation.
package controller

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/inference/providers"
	"github.com/mkorzunowicz/poopdetector/models/mobilesam"
	"github.com/mkorzunowicz/poopdetector/models/model"
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrNoSegmenter is returned by segmentation calls when none is configured.
	ErrNoSegmenter = errors.New("no segmenter configured")
	// ErrNotFrozen is returned by point edits before Freeze.
	ErrNotFrozen = errors.New("no frozen prediction")
	// ErrFrozen is returned by ProcessFrame while a prediction is frozen.
	ErrFrozen = errors.New("predictions paused while frozen")
	// ErrNoPrediction is returned by Freeze before the first frame.
	ErrNoPrediction = errors.New("no prediction to freeze")
)

// Segmenter is the prompted segmentation model.
type Segmenter interface {
	Encode(ctx context.Context, img image.Image) error
	Decode(ctx context.Context, prompt mobilesam.Prompt) (*mobilesam.Result, error)
	ClearPrompts()
	ToEncoder(p image.Point) (mobilesam.Point, error)
	Reconfigure(p providers.Provider) *inference.Task
	Close() error
}

// Prediction is the outcome of one frame.
type Prediction struct {
	ID        uuid.UUID  `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Model     model.Name `json:"model"`
	// Boxes are in input coordinates, highest score first.
	Boxes []postprocess.BoundingBox `json:"boxes"`
	// Framing classifies the first box.
	Framing   FramingResult `json:"framing"`
	AreaRatio float32       `json:"areaRatio"`
	// Ready is set when the frame completes Framing.Hold good frames in a row.
	Ready bool `json:"ready"`

	OriginalWidth  int `json:"originalWidth"`
	OriginalHeight int `json:"originalHeight"`
	InputWidth     int `json:"inputWidth"`
	InputHeight    int `json:"inputHeight"`

	// Polygons and Points are filled by segmentation.
	Polygons []postprocess.Polygon `json:"-"`
	Points   []mobilesam.Point     `json:"points,omitempty"`
	Mask     *postprocess.Mask     `json:"-"`

	Image image.Image `json:"-"`
}

// MarshalJSON encodes the polygons in COCO segmentation form.
func (p Prediction) MarshalJSON() ([]byte, error) {
	type plain Prediction
	boxes := p.Boxes
	if boxes == nil {
		boxes = []postprocess.BoundingBox{}
	}
	out := struct {
		plain
		Boxes        []postprocess.BoundingBox `json:"boxes"`
		Segmentation [][]float32               `json:"segmentation,omitempty"`
	}{plain: plain(p), Boxes: boxes}
	if len(p.Polygons) > 0 {
		out.Segmentation = postprocess.NewSegmentation(p.Polygons).Segmentation
	}
	return json.Marshal(out)
}

// Options configures a Controller.
type Options struct {
	// Detector is required.
	Detector model.Detector
	// Segmenter enables Freeze and point editing.
	Segmenter Segmenter
	// Framing defaults to DefaultFraming when Max is zero.
	Framing Framing
	// HistorySize defaults to DefaultHistorySize.
	HistorySize int
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Controller owns the models of a camera pipeline and the state between frames.
//
// It replaces a process-wide model manager: callers hold the controller and
// pass it where it is needed. All methods are safe for concurrent use.
type Controller struct {
	detector  model.Detector
	segmenter Segmenter
	framing   Framing
	logger    *zap.Logger

	mu       sync.Mutex
	steady   *Steady
	history  []*Prediction
	size     int
	latest   *Prediction
	frozen   *Prediction
	provider providers.Provider
}

// New creates a controller.
//
// Arguments:
//   - opts: The models and settings.
//
// Returns:
//   - *Controller: The controller.
//   - error: An error if no detector is given.
func New(opts Options) (*Controller, error) {
	if opts.Detector == nil {
		return nil, errors.New("controller requires a detector")
	}
	if opts.Framing.Max == 0 {
		opts.Framing = DefaultFraming()
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Controller{
		detector:  opts.Detector,
		segmenter: opts.Segmenter,
		framing:   opts.Framing,
		logger:    opts.Logger.With(zap.String("detector", string(opts.Detector.Name()))),
		steady:    NewSteady(opts.Framing.Hold),
		size:      opts.HistorySize,
	}, nil
}

// ProcessFrame detects on img and records the prediction.
//
// Arguments:
//   - ctx: Cancels waiting for the detector.
//   - img: The camera frame.
//
// Returns:
//   - *Prediction: The new prediction, also the head of History.
//   - error: ErrFrozen while frozen, or a detection error.
func (c *Controller) ProcessFrame(ctx context.Context, img image.Image) (*Prediction, error) {
	if c.Frozen() {
		return nil, ErrFrozen
	}

	start := time.Now()
	boxes, err := c.detector.Detect(ctx, img)
	if err != nil {
		c.logger.Warn("detect failed", zap.Error(err))
		return nil, err
	}

	layout := c.detector.Layout()
	b := img.Bounds()
	p := &Prediction{
		ID:             uuid.New(),
		Timestamp:      start,
		Model:          c.detector.Name(),
		Boxes:          boxes,
		Framing:        c.framing.Evaluate(boxes, layout.Width, layout.Height),
		AreaRatio:      c.framing.Ratio(boxes, layout.Width, layout.Height),
		OriginalWidth:  b.Dx(),
		OriginalHeight: b.Dy(),
		InputWidth:     layout.Width,
		InputHeight:    layout.Height,
		Image:          img,
	}

	c.mu.Lock()
	p.Ready = c.steady.Observe(p.Framing)
	c.push(p)
	c.mu.Unlock()

	c.logger.Debug("frame",
		zap.Stringer("id", p.ID),
		zap.Int("boxes", len(boxes)),
		zap.String("framing", string(p.Framing)),
		zap.Duration("elapsed", time.Since(start)))
	return p, nil
}

// push records p as the latest prediction. c.mu must be held.
func (c *Controller) push(p *Prediction) {
	c.history = append([]*Prediction{p}, c.history...)
	if len(c.history) > c.size {
		c.history = c.history[:c.size]
	}
	c.latest = p
}

// History returns up to HistorySize predictions, newest first.
func (c *Controller) History() []*Prediction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Prediction(nil), c.history...)
}

// Frozen reports whether a prediction is frozen for segmentation.
func (c *Controller) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen != nil
}

// Freeze pauses frame processing on the latest prediction and segments it,
// prompting from the centre of its first box.
//
// Arguments:
//   - ctx: Cancels waiting for the segmenter.
//
// Returns:
//   - *Prediction: A copy of the latest prediction with the segmentation filled in.
//   - error: ErrNoSegmenter, ErrNoPrediction, or a segmentation error.
func (c *Controller) Freeze(ctx context.Context) (*Prediction, error) {
	if c.segmenter == nil {
		return nil, ErrNoSegmenter
	}

	c.mu.Lock()
	if c.latest == nil {
		c.mu.Unlock()
		return nil, ErrNoPrediction
	}
	frozen := *c.latest
	c.frozen = &frozen
	c.mu.Unlock()

	start := time.Now()
	if err := c.segmenter.Encode(ctx, frozen.Image); err != nil {
		c.Resume()
		return nil, errors.Wrap(err, "freeze")
	}

	prompt := mobilesam.Prompt{InputSize: image.Pt(frozen.InputWidth, frozen.InputHeight)}
	if len(frozen.Boxes) > 0 {
		prompt.Box = &frozen.Boxes[0]
	}

	p, err := c.decode(ctx, prompt)
	if err != nil {
		c.Resume()
		return nil, err
	}

	c.logger.Debug("freeze", zap.Stringer("id", p.ID), zap.Int("polygons", len(p.Polygons)),
		zap.Duration("elapsed", time.Since(start)))
	return p, nil
}

// AddPoint adds a foreground point in original frame coordinates to the
// frozen prediction and segments again from every point so far.
func (c *Controller) AddPoint(ctx context.Context, at image.Point) (*Prediction, error) {
	if c.segmenter == nil {
		return nil, ErrNoSegmenter
	}
	if !c.Frozen() {
		return nil, ErrNotFrozen
	}

	pt, err := c.segmenter.ToEncoder(at)
	if err != nil {
		return nil, err
	}
	return c.decode(ctx, mobilesam.Prompt{Point: &pt})
}

func (c *Controller) decode(ctx context.Context, prompt mobilesam.Prompt) (*Prediction, error) {
	res, err := c.segmenter.Decode(ctx, prompt)
	if err != nil {
		c.logger.Warn("segmentation failed", zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen == nil {
		return nil, ErrNotFrozen
	}
	c.frozen.Polygons = res.Polygons
	c.frozen.Points = res.Points
	c.frozen.Mask = res.Mask

	out := *c.frozen
	return &out, nil
}

// ClearPoints drops the points and polygons of the frozen prediction. The
// frame stays encoded.
func (c *Controller) ClearPoints() error {
	if c.segmenter == nil {
		return ErrNoSegmenter
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen == nil {
		return ErrNotFrozen
	}
	c.segmenter.ClearPrompts()
	c.frozen.Polygons = nil
	c.frozen.Points = nil
	c.frozen.Mask = nil
	return nil
}

// Resume drops the frozen prediction and accepts frames again.
func (c *Controller) Resume() {
	c.mu.Lock()
	c.frozen = nil
	c.steady.Reset()
	c.mu.Unlock()
}

// SetProvider rebuilds every session on provider p. Frames keep being served
// by the current sessions until the rebuild completes.
func (c *Controller) SetProvider(p providers.Provider) (*inference.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.provider = p
	c.mu.Unlock()

	tasks := []*inference.Task{c.detector.Reconfigure(p)}
	if c.segmenter != nil {
		tasks = append(tasks, c.segmenter.Reconfigure(p))
	}

	c.logger.Info("switching provider", zap.Stringer("provider", p))
	return inference.All(tasks...), nil
}

// Provider returns the provider last requested through SetProvider, or "" if none.
func (c *Controller) Provider() providers.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider
}

// Close releases the models.
func (c *Controller) Close() error {
	err := c.detector.Close()
	if c.segmenter != nil {
		if serr := c.segmenter.Close(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
