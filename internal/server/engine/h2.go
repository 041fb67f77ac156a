package engine

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"
)

// initH2 prepares the per-worker HTTP/2 server used for TLS connections
// that negotiate h2. The base http.Server only carries shutdown hooks.
func (w *Worker) initH2() {
	cfg := &w.srv.cfg
	w.h2base = &http.Server{
		ErrorLog: slog.NewLogLogger(w.logger.Handler(), slog.LevelDebug),
	}
	w.h2 = &http2.Server{IdleTimeout: h2IdleTimeout(cfg)}
	if err := http2.ConfigureServer(w.h2base, w.h2); err != nil {
		w.logger.Warn("http2 configuration failed", "error", err)
	}
}

// h2IdleTimeout maps the keep-alive policy onto HTTP/2 idle connections.
// Disabled cannot close after one response without breaking multiplexing,
// so idle h2 connections get the request timeout instead.
func h2IdleTimeout(cfg *Config) time.Duration {
	switch cfg.KeepAlive.Mode {
	case ModeTimeout:
		return cfg.KeepAlive.Interval
	case ModeTCPProbe:
		return 0
	}
	return cfg.ClientRequestTimeout
}

// serveH2 hands the connection to the HTTP/2 server. It is a protocol
// loop of its own, so the connection counts as upgraded.
func (c *conn) serveH2(ctx context.Context, tc *tls.Conn) {
	c.setState(connUpgraded)
	c.reason = "h2_closed"
	c.w.h2.ServeConn(tc, &http2.ServeConnOpts{
		Context:    ctx,
		BaseConfig: c.w.h2base,
		Handler:    http.HandlerFunc(c.w.serveStream),
	})
}

// serveStream runs one HTTP/2 stream on the worker's execution slot.
func (w *Worker) serveStream(rw http.ResponseWriter, r *http.Request) {
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)

	ctx, span := w.srv.cfg.Tracer.Start(r.Context(), "http.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("network.protocol.version", "2"),
			attribute.Int("corral.worker", w.id),
		))
	defer span.End()

	sw := &statusWriter{ResponseWriter: rw, status: http.StatusOK}
	start := time.Now()
	err := w.execute(ctx, func(ctx context.Context) {
		w.app.ServeHTTP(sw, r.WithContext(ctx))
	})
	if err != nil {
		return
	}
	w.requests.Add(1)
	span.SetAttributes(attribute.Int("http.response.status_code", sw.status))
	w.srv.metrics.RequestDone(w.id, sw.status, time.Since(start))
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusWriter) WriteHeader(code int) {
	if !s.wroteHeader && code >= 200 {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(p)
}

func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusWriter) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
