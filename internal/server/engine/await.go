package engine

import (
	"context"
	"sync"
)

type taskKey struct{}

// task is one handler invocation bound to its worker's execution slot.
type task struct {
	w *Worker

	mu       sync.Mutex
	held     bool
	detached bool
	// finished is set once the handler has returned; goroutines it left
	// behind no longer hold or wait for the slot.
	finished bool
}

func (t *task) acquire(ctx context.Context) error {
	if err := t.w.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	t.mu.Lock()
	t.held = true
	t.mu.Unlock()
	return nil
}

func (t *task) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held {
		t.held = false
		t.w.slot.Release(1)
	}
}

// detach gives the slot back for good; the connection has left the HTTP
// lifecycle.
func (t *task) detach() {
	t.mu.Lock()
	t.detached = true
	t.mu.Unlock()
	t.release()
}

// finish ends the handler invocation and gives the slot back.
func (t *task) finish() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
	t.release()
}

// active reports whether the handler invocation still owns the slot
// lifecycle.
func (t *task) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.detached && !t.finished
}

// reacquire takes the slot back after a suspension. It cannot be cancelled:
// handler code must not resume outside its worker. A task that finished or
// detached while waiting hands the slot straight back.
func (t *task) reacquire() {
	t.mu.Lock()
	if t.detached || t.finished || t.held {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	_ = t.w.slot.Acquire(context.Background(), 1)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.detached || t.finished {
		t.w.slot.Release(1)
		return
	}
	t.held = true
}

// Await runs fn with the calling handler suspended: the worker's execution
// slot is released so sibling connections of the same worker can proceed,
// and reacquired before Await returns. Outside an engine handler it simply
// calls fn, as it does for a context whose handler has already returned.
func Await(ctx context.Context, fn func(context.Context) error) error {
	t, _ := ctx.Value(taskKey{}).(*task)
	if t == nil || !t.active() {
		return fn(ctx)
	}
	t.release()
	defer t.reacquire()
	return fn(ctx)
}

// AwaitValue is Await for functions producing a value.
func AwaitValue[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var v T
	err := Await(ctx, func(ctx context.Context) error {
		var err error
		v, err = fn(ctx)
		return err
	})
	return v, err
}

// WorkerID returns the ID of the worker running the handler for ctx.
func WorkerID(ctx context.Context) (int, bool) {
	t, _ := ctx.Value(taskKey{}).(*task)
	if t == nil {
		return 0, false
	}
	return t.w.id, true
}
