package config

import "time"

// Default configuration values.
const (
	DefaultBindAddr      = "127.0.0.1:8080"
	DefaultControlSocket = "/var/run/corral/corral.sock"
	DefaultMetricsAddr   = "127.0.0.1:9090"
	DefaultMetricsPath   = "/metrics"

	DefaultKeepAliveMode     = "timeout"
	DefaultKeepAliveInterval = 5 * time.Second

	DefaultShutdownTimeout         = 30 * time.Second
	DefaultClientRequestTimeout    = 5 * time.Second
	DefaultClientDisconnectTimeout = time.Second
	DefaultWriteTimeout            = 30 * time.Second
	DefaultMaxConnPerWorker        = 25000
	DefaultWorkerSelection         = "round_robin"

	DefaultTracingExporter = "stdout"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Binds: []BindConfig{
				{Addr: DefaultBindAddr, Scheme: "plain"},
			},
			KeepAlive: KeepAliveConfig{
				Mode:     DefaultKeepAliveMode,
				Interval: DefaultKeepAliveInterval,
			},
			ShutdownTimeout:         DefaultShutdownTimeout,
			ClientRequestTimeout:    DefaultClientRequestTimeout,
			ClientDisconnectTimeout: DefaultClientDisconnectTimeout,
			WriteTimeout:            DefaultWriteTimeout,
			MaxConnPerWorker:        DefaultMaxConnPerWorker,
			WorkerSelection:         DefaultWorkerSelection,
		},
		Control: ControlSection{
			Socket: DefaultControlSocket,
		},
		Metrics: MetricsSection{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
			Path:    DefaultMetricsPath,
		},
		Tracing: TracingSection{
			Exporter: DefaultTracingExporter,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
