package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Options holds the session settings shared by every model of a pipeline.
type Options struct {
	// Provider selects the execution provider.
	Provider Provider `json:"provider" yaml:"provider"`
	// IntraOpThreads sets threads used inside a node. 0 lets the runtime decide.
	IntraOpThreads int `json:"intraOpThreads" yaml:"intraOpThreads"`
	// InterOpThreads sets threads used across independent nodes. 0 lets the runtime decide.
	InterOpThreads int `json:"interOpThreads" yaml:"interOpThreads"`
	// Provider specific options.
	CUDA     CUDAOptions     `json:"cuda"     yaml:"cuda"`
	CoreML   CoreMLOptions   `json:"coreml"   yaml:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// WithProvider returns a copy of o using p.
func (o Options) WithProvider(p Provider) Options {
	o.Provider = p
	return o
}

// NewSessionOptions builds runtime session options with the configured
// execution provider appended. Graph optimization is always fully enabled.
//
// Arguments:
//   - o: The options.
//
// Returns:
//   - *ort.SessionOptions: The options; the caller must Destroy them.
//   - error: ErrUnsupportedProvider, or a runtime error.
func NewSessionOptions(o Options) (*ort.SessionOptions, error) {
	provider := o.Provider
	if provider == "" {
		provider = CPUExecutionProvider
	}
	if err := provider.Validate(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}

	if err := configure(options, provider, o); err != nil {
		options.Destroy()
		return nil, err
	}

	return options, nil
}

func configure(options *ort.SessionOptions, provider Provider, o Options) error {
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return errors.Wrap(err, "setting graph optimization level")
	}
	if o.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(o.IntraOpThreads); err != nil {
			return errors.Wrap(err, "setting intra-op threads")
		}
	}
	if o.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(o.InterOpThreads); err != nil {
			return errors.Wrap(err, "setting inter-op threads")
		}
	}

	switch provider {
	case CoreMLExecutionProvider:
		if err := options.AppendExecutionProviderCoreML(o.CoreML.flags()); err != nil {
			return errors.Wrap(err, "enabling CoreML")
		}
	case OpenVINOExecutionProvider:
		if err := options.AppendExecutionProviderOpenVINO(o.OpenVINO.toMap()); err != nil {
			return errors.Wrap(err, "enabling OpenVINO")
		}
	case CUDAExecutionProvider:
		cuda, err := o.CUDA.toNative()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "enabling CUDA")
		}
	}

	return nil
}
