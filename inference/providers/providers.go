// Package providers - ONNX Runtime execution providers and runner construction.
package providers

import (
	"strings"

	"github.com/pkg/errors"
)

// Provider represents an ONNX Runtime execution provider.
type Provider string

const (
	// CPUExecutionProvider is always available.
	CPUExecutionProvider Provider = "cpu"
	// CUDAExecutionProvider uses NVIDIA CUDA for GPU acceleration.
	CUDAExecutionProvider Provider = "cuda"
	// CoreMLExecutionProvider uses Apple CoreML, restricted to devices with a Neural Engine.
	CoreMLExecutionProvider Provider = "coreml"
	// OpenVINOExecutionProvider uses Intel OpenVINO.
	OpenVINOExecutionProvider Provider = "openvino"
	// NNAPIExecutionProvider is the Android neural networks API.
	NNAPIExecutionProvider Provider = "nnapi"
)

// ErrUnsupportedProvider is returned for providers the Go runtime binding cannot enable.
var ErrUnsupportedProvider = errors.New("unsupported execution provider")

// ParseProvider converts a case-insensitive name into a Provider.
//
// Arguments:
//   - name: The provider name, e.g. "cpu" or "CoreML".
//
// Returns:
//   - Provider: The provider.
//   - error: ErrUnsupportedProvider for unknown names.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	switch p {
	case CPUExecutionProvider, CUDAExecutionProvider, CoreMLExecutionProvider,
		OpenVINOExecutionProvider, NNAPIExecutionProvider:
		return p, nil
	case "":
		return CPUExecutionProvider, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedProvider, "unknown provider %q", name)
	}
}

// Validate reports whether the provider can be appended to a session.
//
// NNAPI is deprecated and has no binding in onnxruntime_go.
func (p Provider) Validate() error {
	switch p {
	case CPUExecutionProvider, CUDAExecutionProvider, CoreMLExecutionProvider, OpenVINOExecutionProvider:
		return nil
	default:
		return errors.Wrapf(ErrUnsupportedProvider, "%q", string(p))
	}
}

// String implements fmt.Stringer.
func (p Provider) String() string {
	return string(p)
}
