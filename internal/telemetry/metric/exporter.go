package metric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Exporter serves the registry over HTTP on its own listener, apart from
// the worker pool.
type Exporter struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// NewExporter creates an exporter for r at addr and path.
func NewExporter(addr, path string, r *Registry, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, r.Handler())
	return &Exporter{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the listener and serves in the background.
func (e *Exporter) Start() error {
	ln, err := net.Listen("tcp", e.srv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", e.srv.Addr, err)
	}
	e.ln = ln
	e.logger.Info("metrics exporter listening", "addr", ln.Addr().String())

	go func() {
		if err := e.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics exporter error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (e *Exporter) Addr() net.Addr {
	if e.ln == nil {
		return nil
	}
	return e.ln.Addr()
}

// Shutdown stops the exporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.ln == nil {
		return nil
	}
	if err := e.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics exporter shutdown: %w", err)
	}
	return nil
}
