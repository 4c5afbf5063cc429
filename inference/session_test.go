package inference

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner returns a single output named after itself. When block is set,
// Run signals started and waits for release.
type fakeRunner struct {
	name    string
	err     error
	block   bool
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
	closed  atomic.Bool
}

func newFakeRunner(name string) *fakeRunner {
	return &fakeRunner{
		name:    name,
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (f *fakeRunner) Run(_ context.Context, inputs []*Tensor) (Outputs, error) {
	f.runs.Add(1)
	if f.block {
		f.started <- struct{}{}
		<-f.release
	}
	if f.err != nil {
		return Outputs{}, f.err
	}
	return NewOutputs(&Tensor{Name: f.name, Shape: []int64{1}, Data: []float32{float32(len(inputs))}}), nil
}

func (f *fakeRunner) Close() error {
	f.closed.Store(true)
	return nil
}

func factoryOf(r Runner) Factory {
	return func() (Runner, error) { return r, nil }
}

func input(t *testing.T) *Tensor {
	in, err := NewTensor("images", []int64{1, 2}, []float32{1, 2})
	require.NoError(t, err)
	return in
}

func TestSession_Run(t *testing.T) {
	r := newFakeRunner("a")
	s, err := NewSession(SessionArgs{Name: "yolox", Factory: factoryOf(r)})
	require.NoError(t, err)
	defer s.Close()

	out, err := s.Run(context.Background(), input(t))
	require.NoError(t, err)

	got, err := out.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, got.Data)
	assert.Equal(t, "yolox", s.Name())
}

func TestSession_RejectsMismatchedInput(t *testing.T) {
	r := newFakeRunner("a")
	s, err := NewSession(SessionArgs{Name: "yolox", Factory: factoryOf(r)})
	require.NoError(t, err)
	defer s.Close()

	bad := &Tensor{Name: "images", Shape: []int64{1, 3, 4, 4}, Data: make([]float32, 10)}
	_, err = s.Run(context.Background(), bad)

	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Zero(t, r.runs.Load(), "runner must not be called with a mismatched tensor")
}

// TestSession_ReconfigureWaitsForInFlightRun checks that a new runner is only
// built after the running inference has finished.
func TestSession_ReconfigureWaitsForInFlightRun(t *testing.T) {
	first := newFakeRunner("first")
	first.block = true
	second := newFakeRunner("second")

	s, err := NewSession(SessionArgs{Name: "yolox", Factory: factoryOf(first)})
	require.NoError(t, err)
	defer s.Close()

	in := input(t)
	runDone := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), in)
		runDone <- err
	}()
	<-first.started

	var built atomic.Bool
	task := s.Reconfigure(func() (Runner, error) {
		built.Store(true)
		return second, nil
	})

	select {
	case <-task.Done():
		t.Fatal("reconfiguration finished while inference was still running")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, built.Load())

	close(first.release)
	require.NoError(t, <-runDone)
	require.NoError(t, task.Wait(context.Background()))

	assert.True(t, built.Load())
	assert.True(t, first.closed.Load(), "previous runner must be closed")

	out, err := s.Run(context.Background(), input(t))
	require.NoError(t, err)
	_, err = out.Get("second")
	assert.NoError(t, err)
}

func TestSession_AbandonedWaitDoesNotStopRun(t *testing.T) {
	r := newFakeRunner("a")
	r.block = true

	s, err := NewSession(SessionArgs{Name: "yolox", Factory: factoryOf(r)})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	in := input(t)
	runDone := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx, in)
		runDone <- err
	}()
	<-r.started

	cancel()
	assert.ErrorIs(t, <-runDone, context.Canceled)

	close(r.release)
	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, int32(1), r.runs.Load())
}

func TestSession_FailedFactory(t *testing.T) {
	boom := errors.New("model file missing")
	s, err := NewSession(SessionArgs{Name: "sam", Factory: func() (Runner, error) { return nil, boom }})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Run(context.Background(), input(t))
	assert.ErrorIs(t, err, ErrNoRunner)
}

func TestSession_RunnerErrorIsVisibleAndCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	r := newFakeRunner("a")
	r.err = errors.New("ort: invalid argument")

	s, err := NewSession(SessionArgs{Name: "yolov9", Factory: factoryOf(r), Metrics: metrics})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Run(context.Background(), input(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, r.err)
	assert.Equal(t, int32(1), r.runs.Load(), "failures are not retried")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.failures.WithLabelValues("yolov9")))
}

func TestSession_Close(t *testing.T) {
	r := newFakeRunner("a")
	s, err := NewSession(SessionArgs{Name: "yolox", Factory: factoryOf(r)})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.True(t, r.closed.Load())

	_, err = s.Run(context.Background(), input(t))
	assert.ErrorIs(t, err, ErrSessionClosed)

	err = s.Reconfigure(factoryOf(newFakeRunner("b"))).Wait(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)

	assert.NoError(t, s.Close(), "closing twice is a no-op")
}

func TestNewSession_RequiresFactory(t *testing.T) {
	_, err := NewSession(SessionArgs{Name: "x"})
	assert.Error(t, err)
}
