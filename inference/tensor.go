// Package inference - The tensor-in/tensor-out boundary between decoders and the runtime.
package inference

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrShapeMismatch is returned when a tensor's data length disagrees with its shape,
	// or when an output does not have the layout a decoder expects.
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	// ErrMissingOutput is returned when a named output is absent from a run result.
	ErrMissingOutput = errors.New("missing output tensor")
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session closed")
	// ErrNoRunner is returned when a session has no runner, e.g. after a failed load.
	ErrNoRunner = errors.New("no runner loaded")
)

// Tensor is a named dense float32 buffer.
type Tensor struct {
	// Name is the graph input or output name.
	Name string
	// Shape is the tensor shape, outermost dimension first.
	Shape []int64
	// Data is the row-major backing buffer.
	Data []float32
}

// ShapeSize returns the number of elements described by shape.
func ShapeSize(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

// NewTensor creates a tensor and checks that data fills shape exactly.
//
// Arguments:
//   - name: The graph input name.
//   - shape: The tensor shape.
//   - data: The backing buffer.
//
// Returns:
//   - *Tensor: The tensor.
//   - error: ErrShapeMismatch when len(data) does not match shape.
func NewTensor(name string, shape []int64, data []float32) (*Tensor, error) {
	t := &Tensor{Name: name, Shape: shape, Data: data}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that the data length equals the product of the shape.
func (t *Tensor) Validate() error {
	for _, d := range t.Shape {
		if d < 0 {
			return errors.Wrapf(ErrShapeMismatch, "tensor %q has negative dimension in %v", t.Name, t.Shape)
		}
	}
	if want := ShapeSize(t.Shape); want != int64(len(t.Data)) {
		return errors.Wrapf(ErrShapeMismatch, "tensor %q: shape %v needs %d values, got %d",
			t.Name, t.Shape, want, len(t.Data))
	}
	return nil
}

// Dims returns the shape as ints.
func (t *Tensor) Dims() []int {
	dims := make([]int, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = int(d)
	}
	return dims
}

// Outputs is the ordered, named result of a single run.
type Outputs struct {
	tensors []*Tensor
	byName  map[string]*Tensor
}

// NewOutputs indexes tensors by name, keeping their order.
func NewOutputs(tensors ...*Tensor) Outputs {
	o := Outputs{
		tensors: tensors,
		byName:  make(map[string]*Tensor, len(tensors)),
	}
	for _, t := range tensors {
		o.byName[t.Name] = t
	}
	return o
}

// Len returns the number of outputs.
func (o Outputs) Len() int { return len(o.tensors) }

// Get returns the output called name.
func (o Outputs) Get(name string) (*Tensor, error) {
	t, ok := o.byName[name]
	if !ok {
		return nil, errors.Wrapf(ErrMissingOutput, "no output named %q", name)
	}
	return t, nil
}

// At returns the output at position i.
func (o Outputs) At(i int) (*Tensor, error) {
	if i < 0 || i >= len(o.tensors) {
		return nil, errors.Wrapf(ErrMissingOutput, "no output at position %d of %d", i, len(o.tensors))
	}
	return o.tensors[i], nil
}

// Find returns the first output whose name contains substr.
func (o Outputs) Find(substr string) (*Tensor, error) {
	for _, t := range o.tensors {
		if strings.Contains(t.Name, substr) {
			return t, nil
		}
	}
	return nil, errors.Wrapf(ErrMissingOutput, "no output name contains %q", substr)
}

// Runner executes a model. Implementations are not safe for concurrent use;
// Session serializes access.
type Runner interface {
	// Run feeds inputs by name and returns every declared output.
	Run(ctx context.Context, inputs []*Tensor) (Outputs, error)
	// Close releases the native resources held by the runner.
	Close() error
}

// Factory builds a Runner, typically by loading a model with a given execution provider.
type Factory func() (Runner, error)
