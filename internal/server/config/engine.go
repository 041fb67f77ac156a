package config

import (
	"fmt"
	"strings"

	"github.com/yndnr/corral-go/internal/infra/tlsroots"
	"github.com/yndnr/corral-go/internal/server/engine"
)

// KeepAlivePolicy converts the keep_alive section.
func (c *ServerConfig) KeepAlivePolicy() (engine.KeepAlivePolicy, error) {
	ka := c.Server.KeepAlive
	switch strings.ToLower(ka.Mode) {
	case "disabled":
		return engine.KeepAliveDisabled(), nil
	case "timeout":
		return engine.KeepAliveTimeout(ka.Interval), nil
	case "tcp_probe":
		return engine.KeepAliveTCPProbe(ka.Interval), nil
	}
	return engine.KeepAlivePolicy{}, fmt.Errorf("server.keep_alive.mode %q is unknown", ka.Mode)
}

// ToEngine builds the engine configuration and bind specs. Logger, metrics
// and tracer are left for the caller to set. TLS material is loaded here
// so that a missing or mismatched pair fails before anything listens.
func (c *ServerConfig) ToEngine() (engine.Config, []engine.BindSpec, error) {
	policy, err := c.KeepAlivePolicy()
	if err != nil {
		return engine.Config{}, nil, err
	}

	s := c.Server
	cfg := engine.Config{
		Workers:                 s.Workers,
		KeepAlive:               policy,
		ShutdownTimeout:         s.ShutdownTimeout,
		ClientRequestTimeout:    s.ClientRequestTimeout,
		ClientDisconnectTimeout: s.ClientDisconnectTimeout,
		WriteTimeout:            s.WriteTimeout,
		MaxConnsPerWorker:       s.MaxConnPerWorker,
		AcceptRate:              s.AcceptRate,
		AcceptBurst:             s.AcceptBurst,
		Selection:               engine.Selection(s.WorkerSelection),
	}

	specs := make([]engine.BindSpec, 0, len(s.Binds))
	for _, b := range s.Binds {
		spec := engine.BindSpec{Addr: b.Addr, Scheme: engine.SchemePlain}
		if strings.EqualFold(b.Scheme, "tls") {
			tlsCfg, err := tlsroots.ServerTLSConfig(b.TLSCertFile, b.TLSKeyFile, b.TLSClientCAFile)
			if err != nil {
				return engine.Config{}, nil, &engine.BindError{
					Addr:   b.Addr,
					Scheme: engine.SchemeTLS,
					Reason: "tls material",
					Err:    err,
				}
			}
			spec.Scheme = engine.SchemeTLS
			spec.TLSConfig = tlsCfg
			spec.CertFile = b.TLSCertFile
			spec.KeyFile = b.TLSKeyFile
			spec.HTTP2 = b.HTTP2
		}
		specs = append(specs, spec)
	}
	return cfg, specs, nil
}
