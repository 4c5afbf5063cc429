package inference

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SessionArgs represents the arguments for creating a new Session.
type SessionArgs struct {
	// Name identifies the model in logs and metrics.
	Name string
	// Factory builds the initial runner.
	Factory Factory
	// Logger receives lifecycle and timing logs. Defaults to a no-op logger.
	Logger *zap.Logger
	// Metrics is optional.
	Metrics *Metrics
}

// Session owns the runner of one model and serializes everything done with it.
//
// Every operation (initial load, run, reconfiguration, close) is chained behind
// the single pending task, so a reconfiguration never rebuilds the runner while
// an inference is in flight. Callers may abandon a wait through its context;
// the underlying operation still runs to completion.
type Session struct {
	name    string
	logger  *zap.Logger
	metrics *Metrics

	pending atomic.Pointer[Task]

	// runner and closed are only touched from inside chained tasks.
	runner Runner
	closed bool
}

// NewSession creates a session and starts building its runner in the background.
//
// Arguments:
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session; the first Run waits for the runner to be built.
//   - error: An error if args are incomplete.
func NewSession(args SessionArgs) (*Session, error) {
	if args.Factory == nil {
		return nil, errors.New("session requires a runner factory")
	}

	logger := args.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		name:    args.Name,
		logger:  logger.With(zap.String("model", args.Name)),
		metrics: args.Metrics,
	}
	s.pending.Store(CompletedTask(nil))
	s.Reconfigure(args.Factory)

	return s, nil
}

// Name returns the model name.
func (s *Session) Name() string {
	return s.name
}

// chain queues fn behind the current pending task and makes it the new one.
func (s *Session) chain(fn func() error) *Task {
	gate := make(chan struct{})
	var prev *Task

	next := NewTask(func() error {
		<-gate
		<-prev.Done()
		return fn()
	})
	prev = s.pending.Swap(next)
	close(gate)

	return next
}

// Reconfigure replaces the runner with one built by factory once every
// previously queued operation has finished.
//
// Returns:
//   - *Task: The handle of the rebuild; its error is the factory's error.
func (s *Session) Reconfigure(factory Factory) *Task {
	return s.chain(func() error {
		if s.closed {
			return ErrSessionClosed
		}

		start := time.Now()
		runner, err := factory()
		if err != nil {
			s.logger.Error("building runner failed", zap.Error(err))
			return errors.Wrapf(err, "building runner for %s", s.name)
		}

		if s.runner != nil {
			if err := s.runner.Close(); err != nil {
				s.logger.Warn("closing previous runner failed", zap.Error(err))
			}
		}
		s.runner = runner

		s.logger.Debug("runner ready", zap.Duration("elapsed", time.Since(start)))
		return nil
	})
}

// Run executes the model once all previously queued operations have finished.
//
// Arguments:
//   - ctx: Bounds the wait. Cancelling it abandons the result, it does not stop the run.
//   - inputs: The input tensors; each must satisfy Tensor.Validate.
//
// Returns:
//   - Outputs: The named outputs of the model.
//   - error: ErrShapeMismatch, ErrSessionClosed, ctx.Err() or the runner's error.
func (s *Session) Run(ctx context.Context, inputs ...*Tensor) (Outputs, error) {
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return Outputs{}, err
		}
	}

	var out Outputs
	task := s.chain(func() error {
		if s.closed {
			return ErrSessionClosed
		}
		if s.runner == nil {
			return ErrNoRunner
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		res, err := s.runner.Run(ctx, inputs)
		elapsed := time.Since(start)
		s.metrics.Observe(s.name, elapsed, err)

		if err != nil {
			s.logger.Warn("inference failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			return errors.Wrapf(err, "running %s", s.name)
		}

		s.logger.Debug("inference done", zap.Duration("elapsed", elapsed), zap.Int("outputs", res.Len()))
		out = res
		return nil
	})

	if err := task.Wait(ctx); err != nil {
		return Outputs{}, err
	}
	return out, nil
}

// Wait blocks until every operation queued so far has finished.
func (s *Session) Wait(ctx context.Context) error {
	return s.pending.Load().Wait(ctx)
}

// Close releases the runner after every queued operation has finished.
func (s *Session) Close() error {
	task := s.chain(func() error {
		if s.closed {
			return nil
		}
		s.closed = true
		if s.runner == nil {
			return nil
		}
		err := s.runner.Close()
		s.runner = nil
		return err
	})
	return task.Wait(context.Background())
}
