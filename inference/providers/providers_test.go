package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in       string
		expected Provider
		wantErr  bool
	}{
		{in: "cpu", expected: CPUExecutionProvider},
		{in: "CoreML", expected: CoreMLExecutionProvider},
		{in: " cuda ", expected: CUDAExecutionProvider},
		{in: "OpenVINO", expected: OpenVINOExecutionProvider},
		{in: "nnapi", expected: NNAPIExecutionProvider},
		{in: "", expected: CPUExecutionProvider},
		{in: "tpu", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParseProvider(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedProvider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}
}

func TestProvider_Validate(t *testing.T) {
	for _, p := range []Provider{CPUExecutionProvider, CUDAExecutionProvider, CoreMLExecutionProvider, OpenVINOExecutionProvider} {
		assert.NoError(t, p.Validate(), p.String())
	}
	assert.ErrorIs(t, NNAPIExecutionProvider.Validate(), ErrUnsupportedProvider)
}

func TestNewSessionOptions_RejectsNNAPI(t *testing.T) {
	_, err := NewSessionOptions(Options{Provider: NNAPIExecutionProvider})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestCoreMLFlags(t *testing.T) {
	assert.Equal(t, coreMLFlagOnlyEnableDeviceWithANE, CoreMLOptions{}.flags())
	assert.Equal(t, coreMLFlagUseCPUOnly|coreMLFlagOnlyAllowStaticInputShapes,
		CoreMLOptions{AllowWithoutANE: true, CPUOnly: true, RequireStaticInputShapes: true}.flags())
}

func TestOpenVINOOptions_OmitsUnset(t *testing.T) {
	assert.Empty(t, OpenVINOOptions{}.toMap())
	assert.Equal(t, map[string]string{
		"device_type":    "GPU",
		"precision":      "FP16",
		"num_of_threads": "4",
	}, OpenVINOOptions{DeviceType: "GPU", Precision: "FP16", NumOfThreads: 4}.toMap())
}

func TestSharedLibPath_EnvOverride(t *testing.T) {
	t.Setenv(LibraryPathEnv, "/opt/ort/libonnxruntime.so")
	assert.Equal(t, "/opt/ort/libonnxruntime.so", SharedLibPath())
}

func TestNewRunner_RequiresNames(t *testing.T) {
	_, err := NewRunner(RunnerArgs{ModelPath: "yolox_nano.onnx"})
	assert.Error(t, err)
}

func TestNewFactory_AppliesProvider(t *testing.T) {
	t.Setenv(LibraryPathEnv, "/nonexistent/libonnxruntime.so")

	f := NewFactory(RunnerArgs{
		ModelPath: "yolox_nano.onnx",
		Inputs:    []string{"images"},
		Outputs:   []string{"output"},
	}, CoreMLExecutionProvider)

	_, err := f()
	assert.Error(t, err, "a missing runtime library must surface as an error")
}
