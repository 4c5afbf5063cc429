package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTensor(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int64
		data    []float32
		wantErr bool
	}{
		{name: "Exact fit", shape: []int64{1, 2, 3}, data: make([]float32, 6)},
		{name: "Too short", shape: []int64{1, 3, 4, 4}, data: make([]float32, 47), wantErr: true},
		{name: "Too long", shape: []int64{2}, data: make([]float32, 3), wantErr: true},
		{name: "Negative dimension", shape: []int64{-1, 2}, data: make([]float32, 2), wantErr: true},
		{name: "Empty shape", shape: nil, data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTensor("x", tt.shape, tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrShapeMismatch)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOutputs_Lookup(t *testing.T) {
	out := NewOutputs(
		&Tensor{Name: "iou_predictions", Shape: []int64{1, 1}, Data: []float32{0.9}},
		&Tensor{Name: "low_res_masks", Shape: []int64{1, 1, 2, 2}, Data: make([]float32, 4)},
	)

	assert.Equal(t, 2, out.Len())

	m, err := out.Find("masks")
	require.NoError(t, err)
	assert.Equal(t, "low_res_masks", m.Name)

	first, err := out.At(0)
	require.NoError(t, err)
	assert.Equal(t, "iou_predictions", first.Name)

	_, err = out.Get("scores")
	assert.ErrorIs(t, err, ErrMissingOutput)
	_, err = out.At(5)
	assert.ErrorIs(t, err, ErrMissingOutput)
	_, err = out.Find("boxes")
	assert.ErrorIs(t, err, ErrMissingOutput)

	assert.Equal(t, []int{1, 1, 2, 2}, m.Dims())
}

func TestTask_ThenRunsAfterPrevious(t *testing.T) {
	release := make(chan struct{})
	var order []string

	first := NewTask(func() error {
		<-release
		order = append(order, "first")
		return errors.New("first failed")
	})
	second := first.Then(func() error {
		order = append(order, "second")
		return nil
	})

	close(release)
	require.NoError(t, second.Wait(context.Background()))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.EqualError(t, first.Wait(context.Background()), "first failed")
}

func TestTask_WaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	task := NewTask(func() error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)
}

func TestCompletedTask(t *testing.T) {
	boom := errors.New("boom")
	assert.ErrorIs(t, CompletedTask(boom).Wait(context.Background()), boom)
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.Observe("x", time.Millisecond, nil) })
}
