package models

import (
	"context"
	"image/color"
	"testing"

	"github.com/mkorzunowicz/poopdetector/inference"
	"github.com/mkorzunowicz/poopdetector/inference/providers"
	"github.com/mkorzunowicz/poopdetector/models/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopRunner struct{}

func (nopRunner) Run(context.Context, []*inference.Tensor) (inference.Outputs, error) {
	return inference.NewOutputs(), nil
}

func (nopRunner) Close() error { return nil }

func nopBackend() model.Backend {
	return model.Backend{
		Provider: providers.CPUExecutionProvider,
		Build: func(providers.RunnerArgs, providers.Provider) inference.Factory {
			return func() (inference.Runner, error) { return nopRunner{}, nil }
		},
	}
}

func TestNewDetector(t *testing.T) {
	tests := []struct {
		name    string
		args    model.NewModelArgs
		wantErr error
	}{
		{name: "yolox", args: model.NewModelArgs{Name: model.ModelNameYOLOX, Path: "poop.onnx"}},
		{name: "yolox double", args: model.NewModelArgs{Name: model.ModelNameYOLOXDouble, Path: "s.onnx", SecondaryPath: "poop.onnx"}},
		{name: "yolov9", args: model.NewModelArgs{Name: model.ModelNameYOLOv9, Path: "gelan.onnx"}},
		{name: "unknown", args: model.NewModelArgs{Name: "yolov4", Path: "x.onnx"}, wantErr: ErrUnknownModel},
		{name: "segmenter is not a detector", args: model.NewModelArgs{Name: model.ModelNameMobileSAM}, wantErr: ErrUnknownModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det, err := NewDetector(tt.args, nopBackend())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, det)
				return
			}
			require.NoError(t, err)
			defer det.Close()
			assert.Equal(t, tt.args.Name, det.Name())
		})
	}
}

func TestNewDetector_DoubleRequiresSecondaryPath(t *testing.T) {
	det, err := NewDetector(model.NewModelArgs{Name: model.ModelNameYOLOXDouble, Path: "s.onnx"}, nopBackend())
	assert.Error(t, err)
	assert.Nil(t, det)
}

func TestDefaultLabelSet(t *testing.T) {
	assert.Equal(t, LabelSetPoop, DefaultLabelSet(model.ModelNameYOLOX))
	assert.Equal(t, LabelSetCOCO, DefaultLabelSet(model.ModelNameYOLOXDouble))
	assert.Equal(t, LabelSetCOCO, DefaultLabelSet(model.ModelNameYOLOv9))
}

func TestLabelSet_Labels(t *testing.T) {
	tests := []struct {
		set      LabelSet
		expected int
		last     string
	}{
		{set: LabelSetPoop, expected: 1, last: "poop"},
		{set: LabelSetCOCO, expected: 80, last: "toothbrush"},
		{set: LabelSetDouble, expected: 81, last: "poop"},
	}

	for _, tt := range tests {
		t.Run(string(tt.set), func(t *testing.T) {
			labels, err := tt.set.Labels()
			require.NoError(t, err)
			require.Len(t, labels, tt.expected)
			assert.Equal(t, tt.last, labels[len(labels)-1].Name)
		})
	}

	_, err := LabelSet("imagenet").Labels()
	assert.ErrorIs(t, err, ErrUnknownLabelSet)
}

func TestLabelColors(t *testing.T) {
	assert.Equal(t, Red, PoopLabels()[0].Color)

	double := DoubleLabels()
	assert.Equal(t, DodgerBlue, double[len(double)-1].Color)

	coco := COCOLabels()
	assert.Equal(t, "person", coco[0].Name)
	assert.NotEqual(t, coco[0].Color, coco[40].Color)
	for _, l := range coco {
		assert.Equal(t, uint8(255), l.Color.A)
	}
}

func TestParseLabelColor(t *testing.T) {
	c, err := ParseLabelColor("#1e90ff")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 30, G: 144, B: 255, A: 255}, c)

	_, err = ParseLabelColor("blue")
	assert.Error(t, err)
}
