package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/multierr"

	"github.com/yndnr/corral-go/internal/telemetry/logger"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	return multierr.Combine(
		verifyBinds(cfg.Server.Binds),
		verifyServer(&cfg.Server),
		verifyLog(&cfg.Log),
		verifyMetrics(&cfg.Metrics),
	)
}

func verifyBinds(binds []BindConfig) error {
	if len(binds) == 0 {
		return errors.New("server.binds: at least one bind is required")
	}

	var err error
	seen := make(map[string]bool, len(binds))
	for i, b := range binds {
		field := fmt.Sprintf("server.binds[%d]", i)
		if _, _, splitErr := net.SplitHostPort(b.Addr); splitErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s.addr %q: %w", field, b.Addr, splitErr))
		}
		if seen[b.Addr] {
			err = multierr.Append(err, fmt.Errorf("%s.addr %q: duplicate address", field, b.Addr))
		}
		seen[b.Addr] = true

		switch strings.ToLower(b.Scheme) {
		case "", "plain":
			if b.HTTP2 {
				err = multierr.Append(err, fmt.Errorf("%s.http2: requires scheme tls", field))
			}
		case "tls":
			if b.TLSCertFile == "" || b.TLSKeyFile == "" {
				err = multierr.Append(err, fmt.Errorf("%s: tls requires tls_cert_file and tls_key_file", field))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("%s.scheme %q: must be plain or tls", field, b.Scheme))
		}
	}
	return err
}

func verifyServer(s *ServerSection) error {
	var err error
	if s.Workers < 0 {
		err = multierr.Append(err, errors.New("server.workers must not be negative"))
	}

	switch strings.ToLower(s.KeepAlive.Mode) {
	case "disabled":
	case "timeout", "tcp_probe":
		if s.KeepAlive.Interval <= 0 {
			err = multierr.Append(err, fmt.Errorf("server.keep_alive.interval must be positive for mode %s", s.KeepAlive.Mode))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("server.keep_alive.mode %q: must be disabled, timeout or tcp_probe", s.KeepAlive.Mode))
	}

	durations := []struct {
		name  string
		value int64
	}{
		{"server.shutdown_timeout", int64(s.ShutdownTimeout)},
		{"server.client_request_timeout", int64(s.ClientRequestTimeout)},
		{"server.client_disconnect_timeout", int64(s.ClientDisconnectTimeout)},
		{"server.write_timeout", int64(s.WriteTimeout)},
	}
	for _, d := range durations {
		if d.value < 0 {
			err = multierr.Append(err, fmt.Errorf("%s must not be negative", d.name))
		}
	}

	if s.MaxConnPerWorker < 0 {
		err = multierr.Append(err, errors.New("server.max_conn_per_worker must not be negative"))
	}
	if s.AcceptRate < 0 || s.AcceptBurst < 0 {
		err = multierr.Append(err, errors.New("server.accept_rate and server.accept_burst must not be negative"))
	}

	switch s.WorkerSelection {
	case "", "round_robin", "least_conn", "ip_hash", "reuse_port":
	default:
		err = multierr.Append(err, fmt.Errorf("server.worker_selection %q is unknown", s.WorkerSelection))
	}
	return err
}

func verifyLog(l *LogSection) error {
	var err error
	if _, lerr := logger.ParseLevel(l.Level); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log.level: %w", lerr))
	}
	switch strings.ToLower(l.Format) {
	case "", "json", "text":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format %q: must be json or text", l.Format))
	}
	return err
}

func verifyMetrics(m *MetricsSection) error {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Addr); err != nil {
		return fmt.Errorf("metrics.addr %q: %w", m.Addr, err)
	}
	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", m.Path)
	}
	return nil
}
