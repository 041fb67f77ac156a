package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yndnr/corral-go/internal/server/engine"
)

// Stats are the counters shared by every worker's application.
type Stats struct {
	Total     uint64         `json:"total"`
	PerWorker map[int]uint64 `json:"per_worker"`
}

// NewStats returns an empty shared Stats handle.
func NewStats() *engine.Shared[Stats] {
	return engine.NewShared(Stats{PerWorker: make(map[int]uint64)})
}

// Options configures the applications built by Factory.
type Options struct {
	Logger *slog.Logger
	// Stats is shared by all workers; nil creates a fresh handle.
	Stats *engine.Shared[Stats]
	// Audit enables one log line per request.
	Audit bool
}

// App is the application of one worker.
type App struct {
	worker int
	router chi.Router
	stats  *engine.Shared[Stats]
	logger *slog.Logger

	// requests is only touched by handlers, which the worker runs one at
	// a time.
	requests uint64
}

// Factory returns the ApplicationFactory building one App per worker.
func Factory(opts Options) engine.ApplicationFactory {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stats == nil {
		opts.Stats = NewStats()
	}
	return func(_ context.Context, worker int) (engine.Application, error) {
		return NewApp(worker, opts), nil
	}
}

// NewApp builds the application of one worker.
func NewApp(worker int, opts Options) *App {
	a := &App{
		worker: worker,
		stats:  opts.Stats,
		logger: opts.Logger.With("worker", worker),
	}

	r := chi.NewRouter()
	r.Use(RequestID(), Recover(a.logger))
	if opts.Audit {
		r.Use(Audit(a.logger))
	}
	r.Use(a.count)

	r.Get("/health", a.handleHealth)
	r.Get("/worker", a.handleWorker)
	r.Get("/stats", a.handleStats)
	r.Get("/sleep", a.handleSleep)
	r.Get("/close", a.handleClose)
	r.Get("/ws", a.handleWebSocket)
	r.Get("/echo-upgrade", a.handleEchoUpgrade)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	a.router = r
	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Close is called when the worker stops gracefully.
func (a *App) Close() error {
	a.logger.Debug("application closed", "requests", a.requests)
	return nil
}

func (a *App) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.requests++
		a.stats.Update(func(s *Stats) {
			s.Total++
			s.PerWorker[a.worker]++
		})
		next.ServeHTTP(w, r)
	})
}
