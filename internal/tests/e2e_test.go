// Package tests runs the server end to end: engine, demo application and
// control socket wired together the way corral-server wires them.
package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/yndnr/corral-go/internal/cli/connection"
	"github.com/yndnr/corral-go/internal/server/engine"
	"github.com/yndnr/corral-go/internal/server/httpserver"
	"github.com/yndnr/corral-go/internal/server/localserver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type cluster struct {
	srv    *engine.Server
	addr   string
	stats  *engine.Shared[httpserver.Stats]
	socket string
}

// startCluster runs an engine with the demo application on one plain bind
// and a control socket in front of it.
func startCluster(t *testing.T, cfg engine.Config) *cluster {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Logger = logger

	stats := httpserver.NewStats()
	srv, err := engine.New(cfg, httpserver.Factory(httpserver.Options{Logger: logger, Stats: stats}))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	b, err := srv.Bind(engine.BindSpec{Addr: "127.0.0.1:0", Scheme: engine.SchemePlain})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := srv.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	socket := filepath.Join(t.TempDir(), "corral.sock")
	ls := localserver.New(socket, localserver.NewHandler(srv, 5*time.Second), localserver.WithLogger(logger))
	if err := ls.Listen(); err != nil {
		t.Fatalf("control socket: %v", err)
	}
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = ls.Serve()
	}()

	t.Cleanup(func() {
		srv.Stop(2 * time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ls.Shutdown(ctx)
		<-served
	})
	return &cluster{srv: srv, addr: b.Addr().String(), stats: stats, socket: socket}
}

func (c *cluster) control(t *testing.T, cmd string, args ...string) *localserver.Response {
	t.Helper()
	client := connection.NewSocketClient(c.socket)
	defer client.Close()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	resp, err := client.Execute(ctx, cmd, args...)
	if err != nil {
		t.Fatalf("%s: %v", cmd, err)
	}
	return resp
}

type client struct {
	t  *testing.T
	nc net.Conn
	br *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	nc, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { nc.Close() })
	return &client{t: t, nc: nc, br: bufio.NewReader(nc)}
}

func (c *client) send(path string) {
	c.t.Helper()
	if _, err := fmt.Fprintf(c.nc, "GET %s HTTP/1.1\r\nHost: corral\r\n\r\n", path); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *client) read(timeout time.Duration) (*http.Response, []byte) {
	c.t.Helper()
	_ = c.nc.SetReadDeadline(time.Now().Add(timeout))
	defer c.nc.SetReadDeadline(time.Time{})
	resp, err := http.ReadResponse(c.br, nil)
	if err != nil {
		c.t.Fatalf("read response: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func (c *client) get(path string) (*http.Response, []byte) {
	c.t.Helper()
	c.send(path)
	return c.read(5 * time.Second)
}

// closedWithin waits for EOF and reports how long it took.
func (c *client) closedWithin(d time.Duration) (time.Duration, error) {
	start := time.Now()
	_ = c.nc.SetReadDeadline(start.Add(d))
	_, err := c.br.ReadByte()
	elapsed := time.Since(start)
	if err == nil {
		return elapsed, errors.New("unexpected data on idle connection")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return elapsed, fmt.Errorf("still open after %s", d)
	}
	return elapsed, nil
}

func TestE2E_KeepAliveTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end keep-alive test in short mode")
	}

	c := startCluster(t, engine.Config{Workers: 2, KeepAlive: engine.KeepAliveTimeout(5 * time.Second)})

	conn := dial(t, c.addr)
	start := time.Now()
	resp, body := conn.get("/worker")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if resp.Close {
		t.Fatal("HTTP/1.1 response announced close")
	}

	if _, err := conn.closedWithin(7 * time.Second); err != nil {
		t.Fatal(err)
	}
	closedAt := time.Since(start)
	if closedAt < 5*time.Second || closedAt > 6*time.Second {
		t.Errorf("idle connection closed after %s, want within [5s, 6s]", closedAt)
	}
}

func TestE2E_RequestsSpreadOverWorkers(t *testing.T) {
	c := startCluster(t, engine.Config{Workers: 2})

	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		conn := dial(t, c.addr)
		resp, body := conn.get("/worker")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, body)
		}
		var info httpserver.WorkerInfo
		if err := json.Unmarshal(body, &info); err != nil {
			t.Fatalf("decode %q: %v", body, err)
		}
		seen[info.Worker] = true
		conn.nc.Close()
	}
	if len(seen) != 2 {
		t.Errorf("served by workers %v, want 2 distinct", seen)
	}
	if total := c.stats.Load().Total; total != 4 {
		t.Errorf("shared total %d, want 4", total)
	}
}

func TestE2E_ControlPauseResume(t *testing.T) {
	c := startCluster(t, engine.Config{Workers: 2})

	open := dial(t, c.addr)
	open.get("/health")

	if resp := c.control(t, localserver.CmdPause); resp.State != "Paused" {
		t.Fatalf("state after pause %q", resp.State)
	}

	held := dial(t, c.addr)
	held.send("/health")
	_ = held.nc.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, err := held.br.Peek(1); err == nil {
		t.Fatal("paused server answered a new connection")
	}

	if resp, _ := open.get("/health"); resp.StatusCode != http.StatusOK {
		t.Fatalf("open connection affected by pause: %d", resp.StatusCode)
	}

	if resp := c.control(t, localserver.CmdResume); resp.State != "Running" {
		t.Fatalf("state after resume %q", resp.State)
	}
	if resp, _ := held.read(5 * time.Second); resp.StatusCode != http.StatusOK {
		t.Fatalf("held connection status %d", resp.StatusCode)
	}

	var st engine.Status
	if err := c.control(t, localserver.CmdStatus).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if len(st.Workers) != 2 || st.State != engine.StateRunning {
		t.Fatalf("status %+v", st)
	}
}

func TestE2E_ControlStopDrainsInFlight(t *testing.T) {
	c := startCluster(t, engine.Config{Workers: 2})

	busy := dial(t, c.addr)
	busy.send("/sleep?d=300ms")
	// Let the request reach its worker before stopping.
	time.Sleep(50 * time.Millisecond)

	type reply struct {
		status int
		close  bool
	}
	got := make(chan reply, 1)
	go func() {
		_ = busy.nc.SetReadDeadline(time.Now().Add(5 * time.Second))
		resp, err := http.ReadResponse(busy.br, nil)
		if err != nil {
			got <- reply{}
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		got <- reply{resp.StatusCode, resp.Close}
	}()

	resp := c.control(t, localserver.CmdStop, "5s")
	var sum localserver.StopSummary
	if err := resp.Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if sum.Forced || len(sum.Workers) != 0 {
		t.Fatalf("graceful stop reported forced: %+v", sum)
	}
	if resp.State != "Stopped" {
		t.Fatalf("state after stop %q", resp.State)
	}

	r := <-got
	if r.status != http.StatusOK || !r.close {
		t.Fatalf("in-flight reply %+v", r)
	}
	select {
	case <-c.srv.Done():
	case <-time.After(time.Second):
		t.Fatal("server not done after stop")
	}
	if nc, err := net.DialTimeout("tcp", c.addr, 200*time.Millisecond); err == nil {
		nc.Close()
		t.Error("listener still accepting after stop")
	}
}
