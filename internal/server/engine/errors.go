package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrServerStarted is returned by Bind and Start once the server runs.
	ErrServerStarted = errors.New("engine: server already started")
	// ErrServerNotStarted is returned by Pause and Resume before Start.
	ErrServerNotStarted = errors.New("engine: server not started")
	// ErrServerStopped is returned by control operations after Stop.
	ErrServerStopped = errors.New("engine: server stopped")
	// ErrInvalidTransition reports a rejected ShutdownState change.
	ErrInvalidTransition = errors.New("engine: invalid state transition")
)

// BindError reports a listener that could not be established. It is fatal
// at startup.
type BindError struct {
	Addr   string
	Scheme Scheme
	Reason string
	Err    error
}

func (e *BindError) Error() string {
	msg := fmt.Sprintf("bind %s://%s: %s", e.Scheme, e.Addr, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BindError) Unwrap() error { return e.Err }

// WorkerConstructionError reports an ApplicationFactory failure. Any such
// failure aborts Start.
type WorkerConstructionError struct {
	Worker int
	Err    error
}

func (e *WorkerConstructionError) Error() string {
	return fmt.Sprintf("construct worker %d: %v", e.Worker, e.Err)
}

func (e *WorkerConstructionError) Unwrap() error { return e.Err }

// ConnErrorKind classifies connection-scoped failures.
type ConnErrorKind string

const (
	ConnErrMalformed    ConnErrorKind = "malformed"
	ConnErrTimeout      ConnErrorKind = "timeout"
	ConnErrReset        ConnErrorKind = "reset"
	ConnErrHandlerPanic ConnErrorKind = "handler_panic"
	ConnErrTLSHandshake ConnErrorKind = "tls_handshake"
	ConnErrWrite        ConnErrorKind = "write"
)

// ConnectionError is recovered locally: it closes the affected connection
// and never reaches other connections or the worker.
type ConnectionError struct {
	ConnID string
	Kind   ConnErrorKind
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %s: %v", e.ConnID, e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ShutdownTimeoutExceeded records a worker that was still busy when the
// grace period ran out. It is logged and reported in StopResult, never
// returned from Stop.
type ShutdownTimeoutExceeded struct {
	Worker      int
	Grace       time.Duration
	Connections int
}

func (e *ShutdownTimeoutExceeded) Error() string {
	return fmt.Sprintf("worker %d still had %d connections after %s grace; forced", e.Worker, e.Connections, e.Grace)
}
