package main

import (
	"flag"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

func cliContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	app := newApp()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		if err := f.Apply(set); err != nil {
			t.Fatal(err)
		}
	}
	if err := set.Parse(args); err != nil {
		t.Fatal(err)
	}
	return cli.NewContext(app, set, nil)
}

func TestParseBinds(t *testing.T) {
	binds, err := parseBinds([]string{"plain://127.0.0.1:8080", "tls://0.0.0.0:8443"}, "c.pem", "k.pem")
	if err != nil {
		t.Fatal(err)
	}
	if len(binds) != 2 || binds[0].Scheme != "plain" || binds[0].Addr != "127.0.0.1:8080" {
		t.Errorf("binds = %+v", binds)
	}
	if binds[1].TLSCertFile != "c.pem" || binds[1].TLSKeyFile != "k.pem" || !binds[1].HTTP2 {
		t.Errorf("tls bind = %+v", binds[1])
	}

	for _, bad := range []string{"127.0.0.1:80", "udp://1.2.3.4:5", "plain://"} {
		if _, err := parseBinds([]string{bad}, "", ""); err == nil {
			t.Errorf("parseBinds(%q) succeeded", bad)
		}
	}
}

func TestSplitKeepAlive(t *testing.T) {
	tests := []struct {
		in, mode, interval string
		wantErr            bool
	}{
		{"disabled", "disabled", "", false},
		{"timeout:5s", "timeout", "5s", false},
		{"TCP_PROBE:30s", "tcp_probe", "30s", false},
		{"timeout", "", "", true},
		{"forever:1s", "", "", true},
	}
	for _, tt := range tests {
		mode, interval, err := splitKeepAlive(tt.in)
		if (err != nil) != tt.wantErr || mode != tt.mode || interval != tt.interval {
			t.Errorf("splitKeepAlive(%q) = %q, %q, %v", tt.in, mode, interval, err)
		}
	}
}

func TestLoadConfig_Flags(t *testing.T) {
	c := cliContext(t,
		"--bind", "plain://127.0.0.1:9100",
		"--workers", "3",
		"--keep-alive", "tcp_probe:20s",
		"--shutdown-timeout", "4s",
		"--disable-signals",
		"--log-level", "debug",
	)
	cfg, err := loadConfig(c)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if len(cfg.Server.Binds) != 1 || cfg.Server.Binds[0].Addr != "127.0.0.1:9100" {
		t.Errorf("binds = %+v", cfg.Server.Binds)
	}
	if cfg.Server.Workers != 3 || !cfg.Server.DisableSignals || cfg.Log.Level != "debug" {
		t.Errorf("server = %+v, log = %+v", cfg.Server, cfg.Log)
	}
	if cfg.Server.KeepAlive.Mode != "tcp_probe" || cfg.Server.KeepAlive.Interval != 20*time.Second {
		t.Errorf("keep_alive = %+v", cfg.Server.KeepAlive)
	}
	if cfg.Server.ShutdownTimeout != 4*time.Second {
		t.Errorf("shutdown_timeout = %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	c := cliContext(t, "--bind", "tls://127.0.0.1:9443")
	if _, err := loadConfig(c); err == nil {
		t.Fatal("tls bind without key pair accepted")
	}
}
