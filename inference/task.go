package inference

import "context"

// Task is the handle of an operation running in its own goroutine.
//
// A Task completes exactly once. Waiting on it from several goroutines is safe.
type Task struct {
	done chan struct{}
	err  error
}

// NewTask starts fn in a new goroutine and returns its handle.
func NewTask(fn func() error) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.err = fn()
	}()
	return t
}

// CompletedTask returns a task that has already finished with err.
func CompletedTask(err error) *Task {
	t := &Task{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

// Then starts fn once t has finished, whatever its outcome.
func (t *Task) Then(fn func() error) *Task {
	return NewTask(func() error {
		<-t.done
		return fn()
	})
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
//
// Abandoning a wait does not stop the task; it keeps running to completion.
//
// Returns:
//   - error: The task's error, or ctx.Err() if the wait was abandoned.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// All returns a task that finishes when every task in tasks has finished. It
// fails with the first error in argument order.
func All(tasks ...*Task) *Task {
	return NewTask(func() error {
		var first error
		for _, t := range tasks {
			if err := t.Wait(context.Background()); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
