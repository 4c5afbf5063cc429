package yolov9

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
	// InputName is the graph input of the exported network.
	InputName = "input"
	// InputSize is the side of the square network input.
	InputSize = 640
)

// DefaultLayout is 640x640 raw BGR in NCHW order.
func DefaultLayout() images.Layout {
	return images.Layout{
		Width:        InputSize,
		Height:       InputSize,
		ChannelOrder: images.ChannelOrderCHW,
		ColorMode:    images.ColorModeBGR,
	}
}

// Detector is a YOLOv9 network.
type Detector struct {
	mu      sync.Mutex
	layout  images.Layout
	labels  []postprocess.Label
	decoder *Decoder
	handle  *model.Handle
	logger  *zap.Logger
}

// NewDetector opens a YOLOv9 network.
//
// Arguments:
//   - args: The model file, labels and optional thresholds and layout.
//   - backend: Where and how the session runs.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if args are incomplete.
func NewDetector(args model.NewModelArgs, backend model.Backend) (*Detector, error) {
	if len(args.Labels) == 0 {
		return nil, errors.New("yolov9 requires a label set")
	}

	decoder := NewDecoder(len(args.Labels))
	if args.ConfidenceThreshold > 0 {
		decoder.ConfidenceThreshold = args.ConfidenceThreshold
	}
	if args.NMS != nil && args.NMS.IoUThreshold > 0 {
		decoder.IoUThreshold = args.NMS.IoUThreshold
	}

	layout := DefaultLayout()
	if args.Layout.Width > 0 && args.Layout.Height > 0 {
		layout = args.Layout
	}

	handle, err := backend.Open(string(model.ModelNameYOLOv9), providers.RunnerArgs{
		ModelPath: args.Path,
		Inputs:    []string{InputName},
		Outputs:   OutputNames(decoder.Heads),
	})
	if err != nil {
		return nil, err
	}

	logger := backend.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{
		layout:  layout,
		labels:  args.Labels,
		decoder: decoder,
		handle:  handle,
		logger:  logger.With(zap.String("detector", string(model.ModelNameYOLOv9))),
	}, nil
}

// Name returns model.ModelNameYOLOv9.
func (d *Detector) Name() model.Name {
	return model.ModelNameYOLOv9
}

// Layout returns the input tensor layout.
func (d *Detector) Layout() images.Layout {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.layout
}

// Configure sets the network input resolution.
func (d *Detector) Configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid input size %dx%d", width, height)
	}
	d.mu.Lock()
	d.layout.Width, d.layout.Height = width, height
	d.mu.Unlock()
	return nil
}

// Decode decodes the nine head outputs of a run into labelled boxes.
func (d *Detector) Decode(outputs inference.Outputs, srcW, srcH int) ([]postprocess.BoundingBox, error) {
	cands, err := d.decoder.Decode(outputs, srcW, srcH)
	if err != nil {
		return nil, err
	}

	boxes := make([]postprocess.BoundingBox, len(cands))
	for i, c := range cands {
		boxes[i] = postprocess.FromCandidate(c, d.labels)
	}
	return boxes, nil
}

// Detect runs the network on img and returns boxes in input tensor coordinates.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]postprocess.BoundingBox, error) {
	start := time.Now()
	layout := d.Layout()

	in, _, err := model.ToInput(InputName, img, layout)
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
