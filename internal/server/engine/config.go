package engine

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/yndnr/corral-go/internal/telemetry/metric"
)

// Scheme tags a bind address as plain TCP or TLS.
type Scheme string

const (
	SchemePlain Scheme = "plain"
	SchemeTLS   Scheme = "tls"
)

// Selection is the strategy assigning accepted connections to workers.
type Selection string

const (
	SelectRoundRobin Selection = "round_robin"
	SelectLeastConn  Selection = "least_conn"
	SelectIPHash     Selection = "ip_hash"
	// SelectReusePort opens one SO_REUSEPORT socket per worker and lets
	// the kernel distribute connections.
	SelectReusePort Selection = "reuse_port"
)

// Default values applied to zero Config fields.
const (
	DefaultShutdownTimeout         = 30 * time.Second
	DefaultClientRequestTimeout    = 5 * time.Second
	DefaultClientDisconnectTimeout = time.Second
	DefaultWriteTimeout            = 30 * time.Second
	DefaultMaxConnsPerWorker       = 25000
)

// BindSpec describes one listening address.
type BindSpec struct {
	Addr   string
	Scheme Scheme
	// TLSConfig is used as-is for TLS binds when set.
	TLSConfig *tls.Config
	// CertFile and KeyFile are loaded when TLSConfig is nil.
	CertFile string
	KeyFile  string
	// HTTP2 advertises h2 over ALPN on TLS binds.
	HTTP2 bool
}

// Config holds the server configuration. It is read once by New and is
// immutable afterwards.
type Config struct {
	// Workers is the pool size; zero means runtime.NumCPU().
	Workers int
	// KeepAlive is the idle connection policy; zero means DefaultKeepAlive.
	KeepAlive KeepAlivePolicy
	// ShutdownTimeout is the grace period used by Run.
	ShutdownTimeout time.Duration
	// ClientRequestTimeout bounds reading a request head (408 on expiry).
	ClientRequestTimeout time.Duration
	// ClientDisconnectTimeout bounds the wait for the peer to close after
	// a Connection: close response.
	ClientDisconnectTimeout time.Duration
	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration
	// MaxConnsPerWorker caps connections owned by one worker.
	MaxConnsPerWorker int
	// AcceptRate limits accepted connections per second; zero disables.
	AcceptRate  float64
	AcceptBurst int
	Selection   Selection

	Logger  *slog.Logger
	Metrics *metric.Registry
	Tracer  trace.Tracer
}

// DefaultConfig returns a configuration with every default filled in.
func DefaultConfig() Config {
	var c Config
	c.normalize()
	return c
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.KeepAlive == (KeepAlivePolicy{}) {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ShutdownTimeout < 0 {
		c.ShutdownTimeout = 0
	} else if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ClientRequestTimeout == 0 {
		c.ClientRequestTimeout = DefaultClientRequestTimeout
	}
	if c.ClientDisconnectTimeout == 0 {
		c.ClientDisconnectTimeout = DefaultClientDisconnectTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MaxConnsPerWorker <= 0 {
		c.MaxConnsPerWorker = DefaultMaxConnsPerWorker
	}
	if c.AcceptBurst <= 0 {
		c.AcceptBurst = 1
	}
	if c.Selection == "" {
		c.Selection = SelectRoundRobin
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = noop.NewTracerProvider().Tracer("corral")
	}
}

// Validate reports configuration errors New cannot repair.
func (c *Config) Validate() error {
	if c.KeepAlive != (KeepAlivePolicy{}) {
		if err := c.KeepAlive.Validate(); err != nil {
			return err
		}
	}
	switch c.Selection {
	case "", SelectRoundRobin, SelectLeastConn, SelectIPHash, SelectReusePort:
	default:
		return fmt.Errorf("unknown worker selection %q", c.Selection)
	}
	if c.Selection == SelectReusePort && !reusePortSupported {
		return fmt.Errorf("worker selection %q is not supported on %s", c.Selection, runtime.GOOS)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("accept rate must not be negative")
	}
	return nil
}
