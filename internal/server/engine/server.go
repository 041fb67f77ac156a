package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/yndnr/corral-go/internal/telemetry/metric"
)

// Application serves the requests of one worker. If it also implements
// io.Closer it is closed when its worker stops gracefully.
type Application interface {
	http.Handler
}

// ApplicationFactory builds the Application of one worker. It is called
// once per worker, concurrently, when the server starts.
type ApplicationFactory func(ctx context.Context, worker int) (Application, error)

// HandlerFactory adapts a constructor that cannot fail.
func HandlerFactory(fn func(worker int) http.Handler) ApplicationFactory {
	return func(_ context.Context, worker int) (Application, error) {
		return fn(worker), nil
	}
}

// StopResult is the outcome of Stop.
type StopResult struct {
	// Forced is set when at least one worker had to be terminated.
	Forced  bool
	Workers []WorkerResult
	Elapsed time.Duration
}

// Server is the controller owning binder, worker pool and shutdown state.
// Control methods are safe for concurrent use.
type Server struct {
	cfg     Config
	factory ApplicationFactory
	logger  *slog.Logger
	metrics *metric.Registry

	// ctl serialises state changes driven by Pause, Resume and Stop.
	ctl       sync.Mutex
	started   bool
	startedAt time.Time
	state     stateMachine

	binder  *binder
	pool    *pool
	workers []*Worker

	ctx    context.Context
	cancel context.CancelFunc

	stopOnce   sync.Once
	stopResult StopResult
	doneOnce   sync.Once
	done       chan struct{}
}

// New creates a server. cfg is copied; zero fields take their defaults.
func New(cfg Config, factory ApplicationFactory) (*Server, error) {
	if factory == nil {
		return nil, errors.New("engine: nil application factory")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.normalize()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		factory: factory,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.binder = newBinder(&s.cfg)
	names := StateNames()
	s.state.onChange = func(st ShutdownState) {
		s.metrics.SetState(st.String(), names)
	}
	s.metrics.SetState(StateRunning.String(), names)
	return s, nil
}

// Config returns the normalised configuration.
func (s *Server) Config() Config { return s.cfg }

// Bind opens a listening socket for spec. It may be called any number of
// times before Start.
func (s *Server) Bind(spec BindSpec) (*Binding, error) {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	if s.started || s.state.load() != StateRunning {
		return nil, &BindError{Addr: spec.Addr, Scheme: spec.Scheme, Reason: "server already started", Err: ErrServerStarted}
	}
	return s.binder.bind(spec)
}

// Bindings returns the bound addresses in bind order.
func (s *Server) Bindings() []*Binding {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return append([]*Binding(nil), s.binder.bindings...)
}

// Start builds one application per worker and begins accepting. On any
// failure every bound socket is closed and the server ends Stopped.
func (s *Server) Start(ctx context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	if s.started {
		return ErrServerStarted
	}
	if s.state.load() != StateRunning {
		return ErrServerStopped
	}
	s.started = true

	if len(s.binder.bindings) == 0 {
		return s.failStart(&BindError{Reason: "no bind addresses configured"})
	}

	apps, err := buildApplications(ctx, s.cfg.Workers, s.factory)
	if err != nil {
		return s.failStart(err)
	}
	sel, err := newSelector(s.cfg.Selection)
	if err != nil {
		_ = closeApplications(apps)
		return s.failStart(err)
	}

	s.workers = make([]*Worker, len(apps))
	for i, app := range apps {
		s.workers[i] = newWorker(i, app, s)
	}
	s.pool = newPool(s.workers, sel, s.cfg.MaxConnsPerWorker)
	s.startedAt = time.Now()
	s.binder.start(s.ctx, s.pool)

	binds := make([]string, 0, len(s.binder.bindings))
	for _, b := range s.binder.bindings {
		binds = append(binds, b.String())
	}
	s.logger.Info("server started",
		"workers", len(s.workers),
		"binds", binds,
		"keep_alive", s.cfg.KeepAlive.String(),
		"selection", string(s.cfg.Selection),
	)
	return nil
}

func (s *Server) failStart(err error) error {
	s.cancel()
	if cerr := s.binder.close(); cerr != nil {
		s.logger.Warn("closing listeners after failed start", "error", cerr)
	}
	_ = s.state.advance(StateStopping)
	_ = s.state.advance(StateStopped)
	s.stopOnce.Do(func() {})
	s.closeDone()
	s.logger.Error("server start failed", "error", err)
	return err
}

// Run starts the server and blocks until ctx is done or the server is
// stopped by other means. Cancelling ctx stops it with the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) (StopResult, error) {
	if err := s.Start(ctx); err != nil {
		return StopResult{}, err
	}
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return s.Stop(s.cfg.ShutdownTimeout), nil
}

// Pause stops accepting new connections. Open connections are unaffected.
// Pausing a paused server is a no-op.
func (s *Server) Pause() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	if !s.started {
		return ErrServerNotStarted
	}
	switch s.state.load() {
	case StatePaused:
		return nil
	case StateStopping, StateStopped:
		return ErrServerStopped
	}
	if err := s.state.advance(StatePausing); err != nil {
		return err
	}
	s.binder.pause()
	if err := s.state.advance(StatePaused); err != nil {
		return err
	}
	s.logger.Info("server paused")
	return nil
}

// Resume restarts accepting. It is a no-op unless the server is paused.
func (s *Server) Resume() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	if !s.started {
		return ErrServerNotStarted
	}
	switch s.state.load() {
	case StatePaused:
	case StateStopping, StateStopped:
		return ErrServerStopped
	default:
		return nil
	}
	s.binder.resume()
	if err := s.state.advance(StateRunning); err != nil {
		return err
	}
	s.logger.Info("server resumed")
	return nil
}

// Stop shuts the server down. In-flight requests may finish within grace;
// idle connections close at once. Workers still busy when grace expires
// are terminated. Later calls wait for the first and return its result.
func (s *Server) Stop(grace time.Duration) StopResult {
	s.stopOnce.Do(func() {
		s.stopResult = s.stop(grace)
		s.closeDone()
	})
	<-s.done
	return s.stopResult
}

func (s *Server) stop(grace time.Duration) StopResult {
	if grace < 0 {
		grace = 0
	}
	start := time.Now()

	s.ctl.Lock()
	if err := s.state.advance(StateStopping); err != nil {
		s.ctl.Unlock()
		return StopResult{}
	}
	s.ctl.Unlock()

	s.logger.Info("server stopping", "grace", grace)
	s.cancel()
	if err := s.binder.close(); err != nil {
		s.logger.Warn("closing listeners", "error", err)
	}

	for _, w := range s.workers {
		w.beginStop()
	}

	ctx, cancel := graceContext(start, grace)
	defer cancel()

	res := StopResult{Workers: make([]WorkerResult, len(s.workers))}
	var wg sync.WaitGroup
	for i, w := range s.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.Workers[i] = w.awaitStop(ctx, grace)
		}()
	}
	wg.Wait()

	for _, r := range res.Workers {
		if r.Forced {
			res.Forced = true
		}
	}
	res.Elapsed = time.Since(start)
	_ = s.state.advance(StateStopped)
	s.logger.Info("server stopped", "forced", res.Forced, "elapsed", res.Elapsed)
	return res
}

// graceContext expires grace after start, the moment Stop was called, so
// time spent closing listeners and idle connections counts against it.
func graceContext(start time.Time, grace time.Duration) (context.Context, context.CancelFunc) {
	return context.WithDeadline(context.Background(), start.Add(grace))
}

func (s *Server) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done is closed once the server is Stopped.
func (s *Server) Done() <-chan struct{} { return s.done }

// State returns the current ShutdownState.
func (s *Server) State() ShutdownState { return s.state.load() }
