package engine

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/sync/semaphore"
)

type workerState int32

const (
	workerRunning workerState = iota
	workerStopping
	workerStopped
)

func (s workerState) String() string {
	switch s {
	case workerRunning:
		return "running"
	case workerStopping:
		return "stopping"
	}
	return "stopped"
}

// Worker is one sequential execution context. It owns one Application and
// every connection admitted to it; handlers of a worker never run
// concurrently with each other.
type Worker struct {
	id   int
	app  Application
	srv  *Server
	pool *pool

	slot *semaphore.Weighted

	// ctx is cancelled when the worker is forcibly terminated.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conns    map[*conn]struct{}
	stopping atomic.Bool
	state    atomic.Int32
	forced   atomic.Bool
	wg       sync.WaitGroup

	admitted atomic.Int64
	inFlight atomic.Int64
	requests atomic.Uint64

	h2     *http2.Server
	h2base *http.Server

	logger *slog.Logger
}

func newWorker(id int, app Application, srv *Server) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		id:     id,
		app:    app,
		srv:    srv,
		slot:   semaphore.NewWeighted(1),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*conn]struct{}),
		logger: srv.logger.With("worker", id),
	}
	w.initH2()
	return w
}

// ID returns the worker index.
func (w *Worker) ID() int { return w.id }

func (w *Worker) tryAdmit(max int64) bool {
	if w.stopping.Load() {
		return false
	}
	for {
		n := w.admitted.Load()
		if n >= max {
			return false
		}
		if w.admitted.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (w *Worker) releaseAdmission() {
	w.admitted.Add(-1)
	if w.pool != nil {
		w.pool.signal()
	}
}

// serve takes ownership of an admitted connection.
func (w *Worker) serve(nc net.Conn, b *Binding) {
	cfg := &w.srv.cfg
	if err := cfg.KeepAlive.applyTCP(nc); err != nil {
		w.logger.Debug("tcp keep-alive probe setup failed", "error", err)
	}

	rwc := nc
	if b.tlsConfig != nil {
		rwc = tls.Server(nc, b.tlsConfig)
	}
	c := newConn(w, b, rwc)

	w.mu.Lock()
	if w.stopping.Load() {
		w.mu.Unlock()
		_ = nc.Close()
		w.releaseAdmission()
		return
	}
	w.conns[c] = struct{}{}
	w.wg.Add(1)
	w.mu.Unlock()

	go c.serve()
}

// connDone is called exactly once per connection after it has left the
// worker for good.
func (w *Worker) connDone(c *conn) {
	w.mu.Lock()
	delete(w.conns, c)
	w.mu.Unlock()
	w.releaseAdmission()
	w.wg.Done()
}

// execute runs fn holding the execution slot.
func (w *Worker) execute(ctx context.Context, fn func(ctx context.Context)) error {
	t := &task{w: w}
	if err := t.acquire(ctx); err != nil {
		return err
	}
	defer t.finish()
	fn(context.WithValue(ctx, taskKey{}, t))
	return nil
}

// beginStop stops admission and closes idle connections. Processing and
// upgraded connections are left to finish.
func (w *Worker) beginStop() {
	w.mu.Lock()
	w.stopping.Store(true)
	w.state.Store(int32(workerStopping))
	conns := make([]*conn, 0, len(w.conns))
	for c := range w.conns {
		conns = append(conns, c)
	}
	w.mu.Unlock()

	for _, c := range conns {
		c.interruptIfIdle()
	}

	// Sends GOAWAY to HTTP/2 connections; it does not wait for them.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = w.h2base.Shutdown(ctx)
}

// WorkerResult is the shutdown outcome of one worker.
type WorkerResult struct {
	ID     int
	Forced bool
	Err    error
}

// awaitStop waits for the worker's connections to drain, force-terminating
// it once ctx expires.
func (w *Worker) awaitStop(ctx context.Context, grace time.Duration) WorkerResult {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return w.finishGraceful()
	case <-ctx.Done():
		if w.connCount() == 0 {
			return w.finishGraceful()
		}
	}

	n := w.forceTerminate()
	err := &ShutdownTimeoutExceeded{Worker: w.id, Grace: grace, Connections: n}
	w.logger.Warn("shutdown grace period exceeded", "error", err)
	w.srv.metrics.WorkerForced()
	return WorkerResult{ID: w.id, Forced: true, Err: err}
}

func (w *Worker) finishGraceful() WorkerResult {
	w.state.Store(int32(workerStopped))
	w.cancel()
	var err error
	if c, ok := w.app.(io.Closer); ok {
		err = c.Close()
		if err != nil {
			w.logger.Warn("application close failed", "error", err)
		}
	}
	return WorkerResult{ID: w.id, Err: err}
}

// forceTerminate closes every socket of the worker and cancels handler
// contexts. It does not wait for handler goroutines.
func (w *Worker) forceTerminate() int {
	w.forced.Store(true)
	w.state.Store(int32(workerStopped))
	w.cancel()

	w.mu.Lock()
	conns := make([]*conn, 0, len(w.conns))
	for c := range w.conns {
		conns = append(conns, c)
	}
	w.mu.Unlock()

	for _, c := range conns {
		c.forceClose()
	}
	_ = w.h2base.Close()
	return len(conns)
}

// WorkerStatus is a snapshot of one worker.
type WorkerStatus struct {
	ID          int    `json:"id"`
	State       string `json:"state"`
	Connections int    `json:"connections"`
	InFlight    int    `json:"in_flight"`
	Requests    uint64 `json:"requests"`
	Forced      bool   `json:"forced,omitempty"`
}

func (w *Worker) connCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conns)
}

func (w *Worker) status() WorkerStatus {
	n := w.connCount()
	return WorkerStatus{
		ID:          w.id,
		State:       workerState(w.state.Load()).String(),
		Connections: n,
		InFlight:    int(w.inFlight.Load()),
		Requests:    w.requests.Load(),
		Forced:      w.forced.Load(),
	}
}
