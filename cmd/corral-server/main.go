package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/corral-go/internal/infra/buildinfo"
	"github.com/yndnr/corral-go/internal/server/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "corral-server",
		Usage:   "Multi-worker HTTP server",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"CORRAL_CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:  "bind",
				Usage: "listen address as plain://host:port or tls://host:port (repeatable, replaces server.binds)",
			},
			&cli.StringFlag{
				Name:  "tls-cert",
				Usage: "certificate file for tls:// binds given with --bind",
			},
			&cli.StringFlag{
				Name:  "tls-key",
				Usage: "private key file for tls:// binds given with --bind",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "number of workers, 0 for the CPU count",
			},
			&cli.StringFlag{
				Name:  "keep-alive",
				Usage: "disabled, timeout:5s or tcp_probe:30s",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "grace period for a graceful stop",
			},
			&cli.BoolFlag{
				Name:  "disable-signals",
				Usage: "do not stop on SIGTERM, SIGINT or SIGQUIT",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return run(c.Context, cfg, c.String("config"))
		},
	}
}

// flagValues maps the flags given on the command line to config keys.
func flagValues(c *cli.Context) (map[string]any, error) {
	values := map[string]any{}
	if c.IsSet("workers") {
		values["server.workers"] = c.Int("workers")
	}
	if c.IsSet("shutdown-timeout") {
		values["server.shutdown_timeout"] = c.Duration("shutdown-timeout")
	}
	if c.IsSet("disable-signals") {
		values["server.disable_signals"] = c.Bool("disable-signals")
	}
	if c.IsSet("log-level") {
		values["log.level"] = c.String("log-level")
	}
	if c.IsSet("keep-alive") {
		mode, interval, err := splitKeepAlive(c.String("keep-alive"))
		if err != nil {
			return nil, err
		}
		values["server.keep_alive.mode"] = mode
		if interval != "" {
			values["server.keep_alive.interval"] = interval
		}
	}
	return values, nil
}

// splitKeepAlive splits "timeout:5s" into mode and interval.
func splitKeepAlive(s string) (string, string, error) {
	mode, interval, _ := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	switch mode {
	case "disabled":
		return mode, "", nil
	case "timeout", "tcp_probe":
		if interval == "" {
			return "", "", fmt.Errorf("--keep-alive %s needs an interval, e.g. %s:5s", mode, mode)
		}
		return mode, interval, nil
	}
	return "", "", fmt.Errorf("--keep-alive %q: mode must be disabled, timeout or tcp_probe", s)
}

// parseBinds turns --bind values into bind configs.
func parseBinds(values []string, certFile, keyFile string) ([]config.BindConfig, error) {
	binds := make([]config.BindConfig, 0, len(values))
	for _, v := range values {
		u, err := url.Parse(v)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("--bind %q: want plain://host:port or tls://host:port", v)
		}
		b := config.BindConfig{Addr: u.Host, Scheme: u.Scheme}
		switch u.Scheme {
		case "plain":
		case "tls":
			b.TLSCertFile, b.TLSKeyFile = certFile, keyFile
			b.HTTP2 = true
		default:
			return nil, fmt.Errorf("--bind %q: unknown scheme %q", v, u.Scheme)
		}
		binds = append(binds, b)
	}
	return binds, nil
}
