package yolox

import (
	"context"
	"image"
	"time"

	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/inference/providers"
	"github.com/mkorzunowicz/poopdetector/models/model"
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DoubleDetector runs a general network and a poop network on the same input
// tensor. Each output is decoded and suppressed with its own labels; the poop
// boxes are appended after the general ones without cross-model suppression.
type DoubleDetector struct {
	base
	handles [2]*model.Handle
	heads   [2]head
}

// NewDoubleDetector opens both networks.
//
// Arguments:
//   - args: Path is the general network and SecondaryPath the poop network.
//     Labels is the general label set.
//   - poopLabels: The label set of the poop network.
//   - backend: Where and how the sessions run.
//
// Returns:
//   - *DoubleDetector: The detector.
//   - error: An error if args are incomplete.
func NewDoubleDetector(args model.NewModelArgs, poopLabels []postprocess.Label, backend model.Backend) (*DoubleDetector, error) {
	if args.SecondaryPath == "" {
		return nil, errors.New("double detector requires a secondary model path")
	}
	if args.Name == "" {
		args.Name = model.ModelNameYOLOXDouble
	}

	general, err := newHead(args)
	if err != nil {
		return nil, err
	}

	poopArgs := args
	poopArgs.Labels = poopLabels
	poop, err := newHead(poopArgs)
	if err != nil {
		return nil, err
	}

	d := &DoubleDetector{heads: [2]head{general, poop}}
	d.init(args, backend)

	paths := [2]string{args.Path, args.SecondaryPath}
	names := [2]string{string(args.Name) + "/general", string(args.Name) + "/poop"}
	for i := range d.handles {
		d.handles[i], err = backend.Open(names[i], providers.RunnerArgs{
			ModelPath: paths[i],
			Inputs:    []string{InputName},
			Outputs:   []string{OutputName},
		})
		if err != nil {
			_ = d.Close()
			return nil, err
		}
	}

	return d, nil
}

// Name returns model.ModelNameYOLOXDouble.
func (d *DoubleDetector) Name() model.Name {
	return model.ModelNameYOLOXDouble
}

// Decode expects the general output at index 0 and the poop output at index 1.
func (d *DoubleDetector) Decode(outputs inference.Outputs, srcW, srcH int) ([]postprocess.BoundingBox, error) {
	grid := d.grid.Get(d.strides, srcH, srcW)

	var boxes []postprocess.BoundingBox
	for i, h := range d.heads {
		t, err := outputs.At(i)
		if err != nil {
			return nil, err
		}
		decoded, err := h.decode(t, grid)
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, decoded...)
	}
	return boxes, nil
}

// Detect runs both networks one after the other on the same tensor.
func (d *DoubleDetector) Detect(ctx context.Context, img image.Image) ([]postprocess.BoundingBox, error) {
	start := time.Now()

	in, layout, err := d.input(img)
	if err != nil {
		return nil, err
	}

	var tensors []*inference.Tensor
	for _, h := range d.handles {
		out, err := h.Run(ctx, in)
		if err != nil {
			return nil, err
		}
		t, err := out.At(0)
		if err != nil {
			return nil, err
		}
		tensors = append(tensors, t)
	}

	boxes, err := d.Decode(inference.NewOutputs(tensors...), layout.Width, layout.Height)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("detect", zap.Int("boxes", len(boxes)), zap.Duration("elapsed", time.Since(start)))
	return boxes, nil
}

// Reconfigure rebuilds both sessions on provider p. The returned task fails
// with the first rebuild error.
func (d *DoubleDetector) Reconfigure(p providers.Provider) *inference.Task {
	return inference.All(d.handles[0].Reconfigure(p), d.handles[1].Reconfigure(p))
}

// Close releases both sessions.
func (d *DoubleDetector) Close() error {
	var first error
	for _, h := range d.handles {
		if h == nil {
			continue
		}
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
