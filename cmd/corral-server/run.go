package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/corral-go/internal/infra/buildinfo"
	"github.com/yndnr/corral-go/internal/infra/confloader"
	"github.com/yndnr/corral-go/internal/infra/shutdown"
	"github.com/yndnr/corral-go/internal/infra/tlsroots"
	"github.com/yndnr/corral-go/internal/server/config"
	"github.com/yndnr/corral-go/internal/server/engine"
	"github.com/yndnr/corral-go/internal/server/httpserver"
	"github.com/yndnr/corral-go/internal/server/localserver"
	"github.com/yndnr/corral-go/internal/telemetry/logger"
	"github.com/yndnr/corral-go/internal/telemetry/metric"
	"github.com/yndnr/corral-go/internal/telemetry/tracer"
)

const (
	metricsNamespace = "corral"
	hooksTimeout     = 10 * time.Second
)

// loadConfig loads defaults, file, environment and flags, then verifies.
func loadConfig(c *cli.Context) (*config.ServerConfig, error) {
	flags, err := flagValues(c)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	opts := []confloader.Option{confloader.WithFlags(flags)}
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if binds := c.StringSlice("bind"); len(binds) > 0 {
		parsed, err := parseBinds(binds, c.String("tls-cert"), c.String("tls-key"))
		if err != nil {
			return nil, err
		}
		cfg.Server.Binds = parsed
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.ServerConfig, configFile string) error {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting corral-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", configFile,
		"settings", config.Sanitize(cfg),
	)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Background goroutines end with ctx or with their hook; the control
	// socket only returns from Serve once its hook ran.
	hooks := shutdown.NewHooks(hooksTimeout)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		if err := hooks.Run(); err != nil {
			log.Error("releasing resources", "error", err)
		}
		wg.Wait()
	}()

	tp, err := tracer.New(tracer.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		ServiceName: "corral-server",
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	hooks.OnShutdown(tp.Shutdown)

	ecfg, specs, err := cfg.ToEngine()
	if err != nil {
		return err
	}
	ecfg.Logger = log
	ecfg.Tracer = tp.Tracer()

	var reg *metric.Registry
	if cfg.Metrics.Enabled {
		reg = metric.NewRegistry(metricsNamespace)
		ecfg.Metrics = reg
	}

	srv, err := engine.New(ecfg, httpserver.Factory(httpserver.Options{
		Logger: log,
		Audit:  log.Enabled(ctx, slog.LevelDebug),
	}))
	if err != nil {
		return err
	}
	// Closes sockets bound before a failed startup step; a no-op once the
	// server has stopped.
	defer srv.Stop(0)

	for _, spec := range specs {
		if spec.Scheme == engine.SchemeTLS {
			w, err := tlsroots.NewWatcher(spec.CertFile, spec.KeyFile, tlsroots.WithLogger(log))
			if err != nil {
				return &engine.BindError{Addr: spec.Addr, Scheme: spec.Scheme, Reason: "tls material", Err: err}
			}
			w.Apply(spec.TLSConfig)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := w.Run(ctx); err != nil {
					log.Warn("certificate watcher stopped", "cert", spec.CertFile, "error", err)
				}
			}()
		}
		if _, err := srv.Bind(spec); err != nil {
			return err
		}
	}

	if reg != nil {
		if err := reg.Register(metric.NewCollector(metricsNamespace, srv.WorkerSamples)); err != nil {
			return fmt.Errorf("register worker collector: %w", err)
		}
		exp := metric.NewExporter(cfg.Metrics.Addr, cfg.Metrics.Path, reg, log)
		if err := exp.Start(); err != nil {
			return err
		}
		hooks.OnShutdown(exp.Shutdown)
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}

	if cfg.Control.Socket != "" {
		ls := localserver.New(cfg.Control.Socket,
			localserver.NewHandler(srv, cfg.Server.ShutdownTimeout),
			localserver.WithLogger(log))
		if err := ls.Listen(); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ls.Serve(); err != nil {
				log.Error("control socket error", "error", err)
			}
		}()
		hooks.OnShutdown(ls.Shutdown)
	}

	if configFile != "" {
		cw := confloader.NewWatcher(configFile, confloader.WithWatcherLogger(log))
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cw.Run(ctx, func(path string) { reloadLogLevel(path, log) })
			if err != nil {
				log.Warn("configuration watcher stopped", "error", err)
			}
		}()
	}

	gw := shutdown.NewGateway(cfg.Server.ShutdownTimeout,
		shutdown.WithLogger(log),
		shutdown.WithDisabled(cfg.Server.DisableSignals))
	wg.Add(1)
	go func() {
		defer wg.Done()
		gw.Run(ctx, shutdown.TerminatorFunc(func(grace time.Duration) { srv.Stop(grace) }))
	}()

	select {
	case <-srv.Done():
	case <-parent.Done():
	}
	res := srv.Stop(cfg.Server.ShutdownTimeout)
	for _, w := range res.Workers {
		if w.Forced {
			log.Warn("worker terminated after grace period", "worker", w.ID, "error", w.Err)
		}
	}
	log.Info("corral-server exited", "forced", res.Forced, "elapsed", res.Elapsed)
	return nil
}

// reloadLogLevel applies log.level from a changed configuration file.
// Other settings need a restart.
func reloadLogLevel(path string, log *slog.Logger) {
	cfg := config.Default()
	if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(cfg); err != nil {
		log.Warn("ignoring configuration change", "error", err)
		return
	}
	lv, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn("ignoring configuration change", "error", err)
		return
	}
	if lv == logger.Level() {
		return
	}
	_ = logger.SetLevel(cfg.Log.Level)
	log.Info("log level changed", "level", lv.String())
}
