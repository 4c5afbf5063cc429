package yolox

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/mkorzunowicz/poopdetector/images"
	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/inference/providers"
	"github.com/mkorzunowicz/poopdetector/models/model"
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// InputName is the graph input of exported YOLOX networks.
	InputName = "images"
	// OutputName is the graph output of exported YOLOX networks.
	OutputName = "output"
	// DefaultInputSize is the side of the square network input.
	DefaultInputSize = 416
)

// DefaultLayout is the input layout of the nano and tiny networks: 416x416
// raw RGB in NCHW order.
func DefaultLayout() images.Layout {
	return images.Layout{
		Width:        DefaultInputSize,
		Height:       DefaultInputSize,
		ChannelOrder: images.ChannelOrderCHW,
		ColorMode:    images.ColorModeRGB,
	}
}

// head decodes the output of one network.
type head struct {
	labels    []postprocess.Label
	threshold float32
	nms       *postprocess.NMSConfig
}

func newHead(args model.NewModelArgs) (head, error) {
	if len(args.Labels) == 0 {
		return head{}, errors.New("yolox requires a label set")
	}

	h := head{labels: args.Labels, threshold: DefaultConfidenceThreshold, nms: postprocess.DefaultNMSConfig()}
	if args.ConfidenceThreshold > 0 {
		h.threshold = args.ConfidenceThreshold
	}
	if args.NMS != nil {
		h.nms = args.NMS
	}
	return h, nil
}

func (h head) decode(t *inference.Tensor, grid []GridCell) ([]postprocess.BoundingBox, error) {
	if err := checkShape(t, len(grid), len(h.labels)); err != nil {
		return nil, err
	}
	proposals, err := GenerateProposals(t.Data, grid, len(h.labels), h.threshold)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", t.Name)
	}

	kept := postprocess.ApplyNMS(proposals, h.nms)
	boxes := make([]postprocess.BoundingBox, len(kept))
	for i, b := range kept {
		boxes[i] = postprocess.FromBox2D(b, h.labels)
	}
	return boxes, nil
}

// base is the state shared by the single and double detectors.
type base struct {
	mu      sync.Mutex
	layout  images.Layout
	strides []int
	grid    GridCache
	logger  *zap.Logger
}

func (b *base) init(args model.NewModelArgs, backend model.Backend) {
	b.layout = DefaultLayout()
	if args.Layout.Width > 0 && args.Layout.Height > 0 {
		b.layout = args.Layout
	}
	b.strides = DefaultStrides

	logger := backend.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b.logger = logger.With(zap.String("detector", string(args.Name)))
}

// Layout returns the input tensor layout.
func (b *base) Layout() images.Layout {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.layout
}

// Configure sets the network input resolution. The grid is regenerated on the
// next decode.
func (b *base) Configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid input size %dx%d", width, height)
	}

	b.mu.Lock()
	changed := b.layout.Width != width || b.layout.Height != height
	b.layout.Width, b.layout.Height = width, height
	b.mu.Unlock()

	if changed {
		b.grid.Reset()
	}
	return nil
}

func (b *base) input(img image.Image) (*inference.Tensor, images.Layout, error) {
	layout := b.Layout()
	in, _, err := model.ToInput(InputName, img, layout)
	if err != nil {
		return nil, layout, err
	}
	return in, layout, nil
}

// Detector is a single YOLOX network.
type Detector struct {
	base
	name   model.Name
	handle *model.Handle
	head   head
}

// NewDetector opens a YOLOX network.
//
// Arguments:
//   - args: The model file, labels and optional thresholds and layout.
//   - backend: Where and how the session runs.
//
// Returns:
//   - *Detector: The detector; its session loads in the background.
//   - error: An error if args are incomplete.
func NewDetector(args model.NewModelArgs, backend model.Backend) (*Detector, error) {
	h, err := newHead(args)
	if err != nil {
		return nil, err
	}

	if args.Name == "" {
		args.Name = model.ModelNameYOLOX
	}

	handle, err := backend.Open(string(args.Name), providers.RunnerArgs{
		ModelPath: args.Path,
		Inputs:    []string{InputName},
		Outputs:   []string{OutputName},
	})
	if err != nil {
		return nil, err
	}

	d := &Detector{name: args.Name, handle: handle, head: h}
	d.init(args, backend)
	return d, nil
}

// Name returns the model name.
func (d *Detector) Name() model.Name {
	return d.name
}

// Decode decodes the first output of a run at the given input size.
func (d *Detector) Decode(outputs inference.Outputs, srcW, srcH int) ([]postprocess.BoundingBox, error) {
	t, err := outputs.At(0)
	if err != nil {
		return nil, err
	}
	return d.head.decode(t, d.grid.Get(d.strides, srcH, srcW))
}

// Detect runs the network on img and returns boxes in input tensor coordinates.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]postprocess.BoundingBox, error) {
	start := time.Now()

	in, layout, err := d.input(img)
	if err != nil {
		return nil, err
	}

	out, err := d.handle.Run(ctx, in)
	if err != nil {
		return nil, err
	}

	boxes, err := d.Decode(out, layout.Width, layout.Height)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("detect", zap.Int("boxes", len(boxes)), zap.Duration("elapsed", time.Since(start)))
	return boxes, nil
}

// Reconfigure rebuilds the session on provider p.
func (d *Detector) Reconfigure(p providers.Provider) *inference.Task {
	return d.handle.Reconfigure(p)
}

// Close releases the session.
func (d *Detector) Close() error {
	return d.handle.Close()
}
