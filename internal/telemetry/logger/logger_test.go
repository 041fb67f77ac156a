package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level, format string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: level, Format: format, Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = SetLevel("info") })
	return l, &buf
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero config", Config{}, false},
		{"text format", Config{Level: "debug", Format: "text"}, false},
		{"console format", Config{Level: "info", Format: "console"}, false},
		{"unknown level", Config{Level: "loud"}, true},
		{"unknown format", Config{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && l == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
	_ = SetLevel("info")
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, "warn", "json")

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info written at warn level: %s", buf.String())
	}
	l.Warn("kept", "component", "engine")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if entry["level"] != "WARN" || entry["component"] != "engine" {
		t.Errorf("entry = %v", entry)
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := newBufferLogger(t, "error", "text")

	l.Debug("before")
	if err := SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	if Level() != slog.LevelDebug {
		t.Errorf("Level() = %s, want DEBUG", Level())
	}
	l.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("debug message logged before level change")
	}
	if !strings.Contains(out, "after") {
		t.Error("debug message missing after level change")
	}

	if err := SetLevel("verbose"); err == nil {
		t.Error("SetLevel accepted an unknown level")
	}
	if Level() != slog.LevelDebug {
		t.Errorf("failed SetLevel changed the level to %s", Level())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"":        "INFO",
		"debug":   "DEBUG",
		"INFO":    "INFO",
		"warning": "WARN",
		"error":   "ERROR",
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got.String() != want {
			t.Errorf("ParseLevel(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParseLevel("bogus"); err == nil {
		t.Error("ParseLevel(bogus) succeeded")
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "json")

	l.Info("tls", "key_file", "/etc/corral/tls.key", "authorization", "Bearer abc")
	out := buf.String()
	if strings.Contains(out, "tls.key") || strings.Contains(out, "abc") {
		t.Errorf("secret leaked: %s", out)
	}
}

func TestLogger_WithAttrsKeepsContextIDs(t *testing.T) {
	l, buf := newBufferLogger(t, "info", "json")
	ctx := WithConnID(context.Background(), "conn-9")

	l.With("worker", 3).WithGroup("req").InfoContext(ctx, "hello", "path", "/")
	out := buf.String()
	if !strings.Contains(out, `"worker":3`) || !strings.Contains(out, `"conn-9"`) {
		t.Errorf("attrs missing: %s", out)
	}
}
