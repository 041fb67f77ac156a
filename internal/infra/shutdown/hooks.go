package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Hooks releases auxiliary resources (metrics listener, control socket,
// watchers) once the server has stopped.
type Hooks struct {
	timeout time.Duration
	mu      sync.Mutex
	hooks   []func(context.Context) error
	once    sync.Once
	done    chan struct{}
	err     error
}

// NewHooks creates an empty hook list whose run is bounded by timeout.
func NewHooks(timeout time.Duration) *Hooks {
	return &Hooks{timeout: timeout, done: make(chan struct{})}
}

// OnShutdown registers a hook. Hooks run in reverse order of registration.
func (h *Hooks) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
}

// Run executes every hook once and returns their combined error. Later
// calls return the first result.
func (h *Hooks) Run() error {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := append([]func(context.Context) error(nil), h.hooks...)
		h.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			h.err = multierr.Append(h.err, hooks[i](ctx))
		}
		close(h.done)
	})
	return h.err
}

// Done is closed once Run has finished.
func (h *Hooks) Done() <-chan struct{} {
	return h.done
}
