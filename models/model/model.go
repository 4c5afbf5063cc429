// Package model - Common detector interface, model names and configuration.
package model

import (
	"context"
	"image"

	"github.com/mkorzunowicz/poopdetector/images"
	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/inference/providers"
	"github.com/mkorzunowicz/poopdetector/models/postprocess"
	"go.uber.org/zap"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOX is a single YOLOX network.
	ModelNameYOLOX Name = "yolox"
	// ModelNameYOLOXDouble runs a general YOLOX network and a poop YOLOX network on the same frame.
	ModelNameYOLOXDouble Name = "yolox_double"
	// ModelNameYOLOv9 is a YOLOv9 network with separate DFL, class and objectness heads.
	ModelNameYOLOv9 Name = "yolov9"
	// ModelNameMobileSAM is the MobileSAM encoder/decoder pair.
	ModelNameMobileSAM Name = "mobilesam"
)

// Detector turns a frame into final bounding boxes.
//
// Implementations own their inference sessions. Configure and Decode form the
// model-specific part; Detect chains preprocessing, inference and Decode.
type Detector interface {
	// Name returns the model name.
	Name() Name
	// Layout returns the tensor layout frames are packed into.
	Layout() images.Layout
	// Configure sets the network input resolution and drops caches derived from it.
	Configure(width, height int) error
	// Decode interprets raw outputs of one run. srcW and srcH are the input tensor dimensions.
	Decode(outputs inference.Outputs, srcW, srcH int) ([]postprocess.BoundingBox, error)
	// Detect runs the full pipeline on img. Boxes are in input tensor coordinates.
	Detect(ctx context.Context, img image.Image) ([]postprocess.BoundingBox, error)
	// Reconfigure rebuilds every session on provider p once in-flight runs finish.
	Reconfigure(p providers.Provider) *inference.Task
	// Close releases the sessions.
	Close() error
}

// FactoryBuilder creates the runner factory for one model file on a provider.
// Production code uses providers.NewFactory.
type FactoryBuilder func(args providers.RunnerArgs, p providers.Provider) inference.Factory

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name Name `json:"name" yaml:"name"`
	// Path is the model file. For ModelNameYOLOXDouble it is the general network.
	Path string `json:"path" yaml:"path"`
	// SecondaryPath is the poop network of ModelNameYOLOXDouble.
	SecondaryPath string `json:"secondaryPath,omitempty" yaml:"secondaryPath,omitempty"`
	// ConfidenceThreshold overrides the model default when positive.
	ConfidenceThreshold float32 `json:"confidenceThreshold,omitempty" yaml:"confidenceThreshold,omitempty"`
	// NMS overrides the model default when set.
	NMS *postprocess.NMSConfig `json:"nms,omitempty" yaml:"nms,omitempty"`
	// Layout overrides the model's input tensor layout when its Width is positive.
	Layout images.Layout `json:"layout" yaml:"layout"`
	// Labels overrides the model's label set when non-empty.
	Labels []postprocess.Label `json:"-" yaml:"-"`
}

// Backend is what a model needs to open its sessions.
type Backend struct {
	// Provider is the execution provider sessions start on.
	Provider providers.Provider
	// Options holds provider-specific settings.
	Options providers.Options
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string
	// Build defaults to providers.NewFactory.
	Build FactoryBuilder
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Metrics is optional.
	Metrics *inference.Metrics
}

// Handle is an inference session together with what is needed to rebuild it.
type Handle struct {
	args    providers.RunnerArgs
	build   FactoryBuilder
	session *inference.Session
}

// Open starts a session for the model described by args.
//
// Arguments:
//   - name: The session name used in logs and metrics.
//   - args: The model file and its input and output names.
//
// Returns:
//   - *Handle: The handle; the runner is built in the background.
//   - error: An error if the session cannot be created.
func (b Backend) Open(name string, args providers.RunnerArgs) (*Handle, error) {
	build := b.Build
	if build == nil {
		build = func(a providers.RunnerArgs, p providers.Provider) inference.Factory {
			a.Options = b.Options
			a.LibraryPath = b.LibraryPath
			return providers.NewFactory(a, p)
		}
	}

	session, err := inference.NewSession(inference.SessionArgs{
		Name:    name,
		Factory: build(args, b.Provider),
		Logger:  b.Logger,
		Metrics: b.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Handle{args: args, build: build, session: session}, nil
}

// Inputs returns the graph input names.
func (h *Handle) Inputs() []string {
	return h.args.Inputs
}

// Run executes the model with the given inputs.
func (h *Handle) Run(ctx context.Context, inputs ...*inference.Tensor) (inference.Outputs, error) {
	return h.session.Run(ctx, inputs...)
}

// Reconfigure rebuilds the runner on provider p.
func (h *Handle) Reconfigure(p providers.Provider) *inference.Task {
	return h.session.Reconfigure(h.build(h.args, p))
}

// Close releases the session.
func (h *Handle) Close() error {
	return h.session.Close()
}

// ToInput packs img with layout into the named graph input.
func ToInput(name string, img image.Image, layout images.Layout) (*inference.Tensor, *images.TensorData, error) {
	data, err := images.ToTensor(img, layout)
	if err != nil {
		return nil, nil, err
	}

	t, err := inference.NewTensor(name, data.Shape, data.Data)
	if err != nil {
		return nil, nil, err
	}

	return t, data, nil
}
