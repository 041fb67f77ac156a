package confloader

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcher_ReportsChange(t *testing.T) {
	path := writeFile(t, "log:\n  level: info\n")

	w := NewWatcher(path, WithWatcherDebounce(20*time.Millisecond))
	changed := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(p string) {
			select {
			case changed <- p:
			default:
			}
		})
	}()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		if got != path {
			t.Errorf("changed path = %q, want %q", got, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change not reported")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := NewWatcher("/nonexistent/dir/corral.yaml")
	if err := w.Run(context.Background(), func(string) {}); err == nil {
		t.Fatal("Run() accepted a missing directory")
	}
}
