package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"
)

// Severity says how urgently the process was asked to stop.
type Severity int

const (
	// Graceful lets in-flight work finish within the grace period.
	Graceful Severity = iota + 1
	// Forced stops with a zero grace period.
	Forced
)

func (s Severity) String() string {
	switch s {
	case Graceful:
		return "graceful"
	case Forced:
		return "forced"
	}
	return "unknown"
}

// Request is a platform-neutral termination request.
type Request struct {
	Signal   os.Signal
	Severity Severity
}

// Grace returns the grace period for the request.
func (r Request) Grace(graceful time.Duration) time.Duration {
	if r.Severity == Forced {
		return 0
	}
	return graceful
}

// Terminator is what the gateway stops.
type Terminator interface {
	Terminate(grace time.Duration)
}

// TerminatorFunc adapts a function to Terminator.
type TerminatorFunc func(grace time.Duration)

// Terminate calls f.
func (f TerminatorFunc) Terminate(grace time.Duration) { f(grace) }

// Gateway listens for termination signals on behalf of a server.
type Gateway struct {
	grace    time.Duration
	disabled bool
	logger   *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithDisabled turns signal handling off; only the programmatic API stops
// the server then.
func WithDisabled(disabled bool) Option {
	return func(g *Gateway) { g.disabled = disabled }
}

// NewGateway creates a gateway that stops gracefully within grace.
func NewGateway(grace time.Duration, opts ...Option) *Gateway {
	g := &Gateway{grace: grace, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Notify delivers one Request per handled signal until ctx is done. The
// returned channel is closed afterwards. A disabled gateway never delivers.
func (g *Gateway) Notify(ctx context.Context) <-chan Request {
	out := make(chan Request, 1)
	if g.disabled {
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, handledSignals...)
	go func() {
		defer close(out)
		defer signal.Stop(sigCh)
		for {
			select {
			case sig := <-sigCh:
				req := Request{Signal: sig, Severity: classify(sig)}
				select {
				case out <- req:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Run waits for the first termination request and passes it to t. Later
// signals are ignored; a stop in progress is not escalated. Run returns
// when a request was handled or ctx is done.
func (g *Gateway) Run(ctx context.Context, t Terminator) (Request, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	select {
	case req, ok := <-g.Notify(ctx):
		if !ok {
			return Request{}, false
		}
		grace := req.Grace(g.grace)
		g.logger.Info("termination signal received",
			"signal", req.Signal.String(),
			"severity", req.Severity.String(),
			"grace", grace,
		)
		t.Terminate(grace)
		return req, true
	case <-ctx.Done():
		return Request{}, false
	}
}

func classify(sig os.Signal) Severity {
	if s, ok := signalSeverity[sig]; ok {
		return s
	}
	return Graceful
}
