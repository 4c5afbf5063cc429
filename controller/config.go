package controller

import (
	"os"

	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/inference/providers"
	"github.com/mkorzunowicz/poopdetector/models"
	"github.com/mkorzunowicz/poopdetector/models/mobilesam"
	"github.com/mkorzunowicz/poopdetector/models/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultHistorySize is the number of predictions kept by default.
const DefaultHistorySize = 5

// Config describes a pipeline.
//
// Zero thresholds in Detector defer to the model defaults: confidence 0.7 for
// YOLOX, 0.40 for YOLOv9, and NMS at 0.45 for both.
type Config struct {
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string `json:"libraryPath,omitempty" yaml:"libraryPath,omitempty"`
	// Runtime selects the execution provider and its settings.
	Runtime providers.Options `json:"runtime" yaml:"runtime"`
	// Detector is the detection model.
	Detector model.NewModelArgs `json:"detector" yaml:"detector"`
	// LabelSet overrides the detector's default label set.
	LabelSet models.LabelSet `json:"labelSet,omitempty" yaml:"labelSet,omitempty"`
	// Segmenter enables segmentation when set.
	Segmenter *mobilesam.Args `json:"segmenter,omitempty" yaml:"segmenter,omitempty"`
	// Framing is the auto-capture window.
	Framing Framing `json:"framing" yaml:"framing"`
	// HistorySize is the number of predictions kept.
	HistorySize int `json:"historySize" yaml:"historySize"`
}

// DefaultConfig returns a single poop YOLOX network on the CPU.
func DefaultConfig() Config {
	return Config{
		Runtime: providers.Options{Provider: providers.CPUExecutionProvider},
		Detector: model.NewModelArgs{
			Name: model.ModelNameYOLOX,
		},
		Framing:     DefaultFraming(),
		HistorySize: DefaultHistorySize,
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	return ParseConfig(raw)
}

// ParseConfig parses YAML over DefaultConfig.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration without opening any model.
func (c Config) Validate() error {
	if c.Detector.Path == "" {
		return errors.New("detector path is required")
	}
	if err := c.Runtime.Provider.Validate(); err != nil {
		return err
	}
	if c.LabelSet != "" {
		if _, err := c.LabelSet.Labels(); err != nil {
			return err
		}
	}
	if c.Framing.Min < 0 || c.Framing.Max > 1 || c.Framing.Min >= c.Framing.Max {
		return errors.Errorf("invalid framing window [%g, %g]", c.Framing.Min, c.Framing.Max)
	}
	if c.HistorySize <= 0 {
		return errors.Errorf("history size must be positive, got %d", c.HistorySize)
	}
	if c.Segmenter != nil && (c.Segmenter.EncoderPath == "" || c.Segmenter.DecoderPath == "") {
		return errors.New("segmenter requires an encoder and a decoder path")
	}
	return nil
}

// Backend returns the session backend described by c.
func (c Config) Backend(logger *zap.Logger, metrics *inference.Metrics) model.Backend {
	return model.Backend{
		Provider:    c.Runtime.Provider,
		Options:     c.Runtime,
		LibraryPath: c.LibraryPath,
		Logger:      logger,
		Metrics:     metrics,
	}
}

// Open creates the models of c and a controller driving them.
//
// Arguments:
//   - c: The configuration.
//   - backend: Where and how the sessions run, usually c.Backend.
//
// Returns:
//   - *Controller: The controller; Close releases every model.
//   - error: A validation or model creation error.
func Open(c Config, backend model.Backend) (*Controller, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	args := c.Detector
	if c.LabelSet != "" {
		labels, err := c.LabelSet.Labels()
		if err != nil {
			return nil, err
		}
		args.Labels = labels
	}

	det, err := models.NewDetector(args, backend)
	if err != nil {
		return nil, errors.Wrap(err, "opening detector")
	}

	opts := Options{
		Detector:    det,
		Framing:     c.Framing,
		HistorySize: c.HistorySize,
		Logger:      backend.Logger,
	}

	if c.Segmenter != nil {
		seg, err := mobilesam.NewSegmenter(*c.Segmenter, backend)
		if err != nil {
			_ = det.Close()
			return nil, errors.Wrap(err, "opening segmenter")
		}
		opts.Segmenter = seg
	}

	ctrl, err := New(opts)
	if err != nil {
		_ = det.Close()
		if opts.Segmenter != nil {
			_ = opts.Segmenter.Close()
		}
		return nil, err
	}
	return ctrl, nil
}
