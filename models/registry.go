package models

import (
	"github.com/mkorzunowicz/poopdetector/models/model"
	"github.com/mkorzunowicz/poopdetector/models/yolov9"
	"github.com/mkorzunowicz/poopdetector/models/yolox"
	"github.com/pkg/errors"
)

// ErrUnknownModel is returned for a model name without a detector.
var ErrUnknownModel = errors.New("unknown model")

// DefaultLabelSet returns the label set a detector uses when none is configured.
func DefaultLabelSet(name model.Name) LabelSet {
	switch name {
	case model.ModelNameYOLOX:
		return LabelSetPoop
	default:
		return LabelSetCOCO
	}
}

// NewDetector creates the detector named by args.Name.
//
// This factory is the single entry point for detector creation. Empty labels
// are filled from DefaultLabelSet. For ModelNameYOLOXDouble, args.Labels is
// the general set and the poop network always uses PoopLabels.
//
// Arguments:
//   - args: The model name, files and overrides.
//   - backend: Where and how the sessions run.
//
// Returns:
//   - model.Detector: The detector.
//   - error: ErrUnknownModel, or an error from the detector constructor.
//
// Example:
//
//	det, err := NewDetector(model.NewModelArgs{
//	    Name: model.ModelNameYOLOXDouble,
//	    Path: "/models/yolox_s.onnx",
//	    SecondaryPath: "/models/yolox_poop.onnx",
//	}, model.Backend{Provider: providers.CPUExecutionProvider})
func NewDetector(args model.NewModelArgs, backend model.Backend) (model.Detector, error) {
	if len(args.Labels) == 0 {
		labels, err := DefaultLabelSet(args.Name).Labels()
		if err != nil {
			return nil, err
		}
		args.Labels = labels
	}

	switch args.Name {
	case model.ModelNameYOLOX:
		d, err := yolox.NewDetector(args, backend)
		if err != nil {
			return nil, err
		}
		return d, nil
	case model.ModelNameYOLOXDouble:
		d, err := yolox.NewDoubleDetector(args, PoopLabels(), backend)
		if err != nil {
			return nil, err
		}
		return d, nil
	case model.ModelNameYOLOv9:
		d, err := yolov9.NewDetector(args, backend)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, errors.Wrapf(ErrUnknownModel, "%q", args.Name)
	}
}
