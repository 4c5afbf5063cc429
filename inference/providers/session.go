package providers

import (
	"context"

	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// RunnerArgs represents the arguments for creating a new ONNX Runtime runner.
type RunnerArgs struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string `json:"modelPath" yaml:"modelPath"`
	// Inputs are the graph input names, in the order the graph declares them.
	Inputs []string `json:"inputs" yaml:"inputs"`
	// Outputs are the graph output names to fetch.
	Outputs []string `json:"outputs" yaml:"outputs"`
	// Options select the execution provider and threading.
	Options Options `json:"options" yaml:"options"`
	// LibraryPath overrides SharedLibPath.
	LibraryPath string `json:"libraryPath" yaml:"libraryPath"`
}

// Runner executes an ONNX model through a dynamic session. Output tensors are
// allocated by the runtime on every run, so models with data-dependent output
// shapes are supported.
type Runner struct {
	session *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
}

// NewRunner loads a model.
//
// Order of operations:
//  1. Environment setup: loads the shared library once per process.
//  2. Session options: graph optimization and the execution provider.
//  3. Session creation: loads the model and binds input and output names.
//
// Arguments:
//   - args: The arguments for the runner.
//
// Returns:
//   - *Runner: The runner.
//   - error: An error if any step fails.
func NewRunner(args RunnerArgs) (*Runner, error) {
	if len(args.Inputs) == 0 || len(args.Outputs) == 0 {
		return nil, errors.Errorf("runner for %s requires input and output names", args.ModelPath)
	}

	if err := Initialize(args.LibraryPath); err != nil {
		return nil, err
	}

	options, err := NewSessionOptions(args.Options)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(args.ModelPath, args.Inputs, args.Outputs, options)
	if err != nil {
		return nil, errors.Wrapf(err, "creating session for %s", args.ModelPath)
	}

	return &Runner{
		session: session,
		inputs:  args.Inputs,
		outputs: args.Outputs,
	}, nil
}

// NewFactory returns an inference.Factory that loads args with provider p.
func NewFactory(args RunnerArgs, p Provider) inference.Factory {
	args.Options = args.Options.WithProvider(p)
	return func() (inference.Runner, error) {
		return NewRunner(args)
	}
}

// Run implements inference.Runner. Inputs are matched to graph inputs by name.
func (r *Runner) Run(ctx context.Context, inputs []*inference.Tensor) (inference.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return inference.Outputs{}, err
	}

	byName := make(map[string]*inference.Tensor, len(inputs))
	for _, t := range inputs {
		byName[t.Name] = t
	}

	values := make([]ort.Value, len(r.inputs))
	defer destroyAll(values)

	for i, name := range r.inputs {
		t, ok := byName[name]
		if !ok {
			return inference.Outputs{}, errors.Errorf("missing input %q", name)
		}
		v, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
		if err != nil {
			return inference.Outputs{}, errors.Wrapf(err, "creating input tensor %q", name)
		}
		values[i] = v
	}

	results := make([]ort.Value, len(r.outputs))
	defer destroyAll(results)

	if err := r.session.Run(values, results); err != nil {
		return inference.Outputs{}, errors.Wrap(err, "running session")
	}

	tensors := make([]*inference.Tensor, len(results))
	for i, v := range results {
		ft, ok := v.(*ort.Tensor[float32])
		if !ok {
			return inference.Outputs{}, errors.Wrapf(inference.ErrShapeMismatch,
				"output %q is %T, want float32 tensor", r.outputs[i], v)
		}
		tensors[i] = &inference.Tensor{
			Name:  r.outputs[i],
			Shape: ft.GetShape().Clone(),
			Data:  append([]float32(nil), ft.GetData()...),
		}
	}

	return inference.NewOutputs(tensors...), nil
}

// Close releases the native session.
func (r *Runner) Close() error {
	if r.session == nil {
		return nil
	}
	err := r.session.Destroy()
	r.session = nil
	if err != nil {
		return errors.Wrap(err, "destroying session")
	}
	return nil
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}
