package shutdown

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequest_Grace(t *testing.T) {
	if got := (Request{Severity: Forced}).Grace(30 * time.Second); got != 0 {
		t.Errorf("forced grace = %v", got)
	}
	if got := (Request{Severity: Graceful}).Grace(30 * time.Second); got != 30*time.Second {
		t.Errorf("graceful grace = %v", got)
	}
}

func TestClassify_Unknown(t *testing.T) {
	if got := classify(os.Kill); got != Graceful {
		t.Errorf("classify(unhandled) = %s", got)
	}
}

func TestGateway_Disabled(t *testing.T) {
	g := NewGateway(time.Second, WithDisabled(true), WithLogger(quietLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	called := false
	_, handled := g.Run(ctx, TerminatorFunc(func(time.Duration) { called = true }))
	if handled || called {
		t.Fatal("disabled gateway handled a request")
	}
}
