package config

import "time"

// ServerConfig is the root configuration for corral-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Control ControlSection `koanf:"control"`
	Metrics MetricsSection `koanf:"metrics"`
	Tracing TracingSection `koanf:"tracing"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures listeners, workers and connection policy.
type ServerSection struct {
	Binds []BindConfig `koanf:"binds"`

	// Workers is the worker pool size; 0 means the logical CPU count.
	Workers   int             `koanf:"workers"`
	KeepAlive KeepAliveConfig `koanf:"keep_alive"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	DisableSignals  bool          `koanf:"disable_signals"`

	ClientRequestTimeout    time.Duration `koanf:"client_request_timeout"`
	ClientDisconnectTimeout time.Duration `koanf:"client_disconnect_timeout"`
	WriteTimeout            time.Duration `koanf:"write_timeout"`

	MaxConnPerWorker int     `koanf:"max_conn_per_worker"`
	AcceptRate       float64 `koanf:"accept_rate"`
	AcceptBurst      int     `koanf:"accept_burst"`
	WorkerSelection  string  `koanf:"worker_selection"`
}

// BindConfig is one listening address.
type BindConfig struct {
	Addr            string `koanf:"addr"`
	Scheme          string `koanf:"scheme"`
	TLSCertFile     string `koanf:"tls_cert_file"`
	TLSKeyFile      string `koanf:"tls_key_file"`
	TLSClientCAFile string `koanf:"tls_client_ca_file"`
	HTTP2           bool   `koanf:"http2"`
}

// KeepAliveConfig selects the idle connection policy.
type KeepAliveConfig struct {
	// Mode is disabled, timeout or tcp_probe.
	Mode     string        `koanf:"mode"`
	Interval time.Duration `koanf:"interval"`
}

// ControlSection configures the local control socket.
type ControlSection struct {
	// Socket is the unix socket path; empty disables the control socket.
	Socket string `koanf:"socket"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	Path    string `koanf:"path"`
}

// TracingSection configures request tracing.
type TracingSection struct {
	Enabled  bool   `koanf:"enabled"`
	Exporter string `koanf:"exporter"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
