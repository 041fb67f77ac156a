package command

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/corral-go/internal/server/engine"
	"github.com/yndnr/corral-go/internal/server/localserver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeServer struct {
	mu    sync.Mutex
	state engine.ShutdownState
	grace time.Duration
}

func (f *fakeServer) Status() engine.Status {
	return engine.Status{
		State:     f.State(),
		Binds:     []string{"plain://127.0.0.1:8080"},
		KeepAlive: "timeout:5s",
		Selection: engine.SelectRoundRobin,
		Uptime:    90 * time.Second,
		Workers: []engine.WorkerStatus{
			{ID: 0, State: "running", Connections: 3, Requests: 42},
			{ID: 1, State: "running", Connections: 1, InFlight: 1, Requests: 7},
		},
	}
}

func (f *fakeServer) Pause() error  { return f.set(engine.StatePaused) }
func (f *fakeServer) Resume() error { return f.set(engine.StateRunning) }

func (f *fakeServer) Stop(grace time.Duration) engine.StopResult {
	f.mu.Lock()
	f.grace = grace
	f.mu.Unlock()
	f.set(engine.StateStopped)
	return engine.StopResult{Elapsed: 120 * time.Millisecond, Workers: []engine.WorkerResult{{ID: 0}, {ID: 1}}}
}

func (f *fakeServer) State() engine.ShutdownState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeServer) set(s engine.ShutdownState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	return nil
}

func startControl(t *testing.T) (*fakeServer, string) {
	t.Helper()
	fake := &fakeServer{}
	path := filepath.Join(t.TempDir(), "corral.sock")
	srv := localserver.New(path, localserver.NewHandler(fake, 30*time.Second))
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		<-done
	})
	return fake, path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"corral-cli"}, args...))
	return stdout.String(), err
}

func TestApp_Commands(t *testing.T) {
	app := App()
	names := map[string]bool{}
	for _, cmd := range app.Commands {
		names[cmd.Name] = true
	}
	for _, want := range []string{"status", "workers", "pause", "resume", "stop"} {
		if !names[want] {
			t.Errorf("missing command %q", want)
		}
	}
}

func TestStatus_Table(t *testing.T) {
	_, sock := startControl(t)
	out, err := run(t, "--socket", sock, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"State:      Running", "Uptime:     1m30s", "plain://127.0.0.1:8080", "CONNECTIONS", "42"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWorkers_JSONAndYAML(t *testing.T) {
	_, sock := startControl(t)

	out, err := run(t, "--socket", sock, "-o", "json", "workers")
	if err != nil {
		t.Fatal(err)
	}
	var workers []engine.WorkerStatus
	if err := json.Unmarshal([]byte(out), &workers); err != nil {
		t.Fatalf("json output %q: %v", out, err)
	}
	if len(workers) != 2 || workers[1].InFlight != 1 {
		t.Errorf("workers = %+v", workers)
	}

	out, err = run(t, "--socket", sock, "-o", "yaml", "workers")
	if err != nil {
		t.Fatal(err)
	}
	var generic []map[string]any
	if err := yaml.Unmarshal([]byte(out), &generic); err != nil {
		t.Fatalf("yaml output %q: %v", out, err)
	}
	if len(generic) != 2 || generic[0]["requests"] != 42 {
		t.Errorf("yaml = %v", generic)
	}
}

func TestPauseResume(t *testing.T) {
	fake, sock := startControl(t)

	out, err := run(t, "--socket", sock, "pause")
	if err != nil || strings.TrimSpace(out) != "server is Paused" {
		t.Fatalf("pause = %q, %v", out, err)
	}
	if fake.State() != engine.StatePaused {
		t.Errorf("state = %v", fake.State())
	}
	out, err = run(t, "--socket", sock, "-o", "json", "resume")
	if err != nil || !strings.Contains(out, `"state": "Running"`) {
		t.Fatalf("resume = %q, %v", out, err)
	}
}

func TestStop(t *testing.T) {
	fake, sock := startControl(t)

	out, err := run(t, "--socket", sock, "-o", "json", "stop", "--grace", "3s")
	if err != nil {
		t.Fatal(err)
	}
	if fake.grace != 3*time.Second {
		t.Errorf("grace = %v, want 3s", fake.grace)
	}
	var res stopResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.State != "Stopped" || res.Forced || res.Elapsed != 120*time.Millisecond {
		t.Errorf("result = %+v", res)
	}
}

func TestBadOutputFormat(t *testing.T) {
	if _, err := run(t, "--output", "xml", "status"); err == nil {
		t.Fatal("run with --output xml succeeded")
	}
}

func TestNoServer(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "none.sock")
	if _, err := run(t, "--socket", sock, "--timeout", "200ms", "status"); err == nil {
		t.Fatal("status without a server succeeded")
	}
}
