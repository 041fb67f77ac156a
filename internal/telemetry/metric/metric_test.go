package metric

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_Recording(t *testing.T) {
	r := NewRegistry("corral")

	r.ConnAccepted("127.0.0.1:8080")
	r.ConnAccepted("127.0.0.1:8080")
	r.ConnClosed("keepalive_expired")
	r.ConnError("malformed")
	r.RequestDone(1, 200, 15*time.Millisecond)
	r.Upgraded()
	r.WorkerForced()

	if got := testutil.ToFloat64(r.connAccepted.WithLabelValues("127.0.0.1:8080")); got != 2 {
		t.Errorf("connections_accepted_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.connClosed.WithLabelValues("keepalive_expired")); got != 1 {
		t.Errorf("connections_closed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.requestsTotal.WithLabelValues("1", "200")); got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.upgrades); got != 1 {
		t.Errorf("connections_upgraded_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.workersForced); got != 1 {
		t.Errorf("workers_forced_total = %v, want 1", got)
	}
}

func TestRegistry_SetState(t *testing.T) {
	r := NewRegistry("corral")
	all := []string{"Running", "Paused", "Stopped"}

	r.SetState("Paused", all)
	if got := testutil.ToFloat64(r.serverState.WithLabelValues("Paused")); got != 1 {
		t.Errorf("Paused = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.serverState.WithLabelValues("Running")); got != 0 {
		t.Errorf("Running = %v, want 0", got)
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	r.ConnAccepted("x")
	r.ConnClosed("x")
	r.ConnError("x")
	r.RequestDone(0, 500, time.Second)
	r.Upgraded()
	r.SetState("Running", []string{"Running"})
	r.WorkerForced()
}

func TestCollector(t *testing.T) {
	c := NewCollector("corral", func() []WorkerSample {
		return []WorkerSample{
			{ID: 0, Connections: 3, InFlight: 1, Requests: 10},
			{ID: 1, Connections: 0, InFlight: 0, Requests: 4},
		}
	})

	if n := testutil.CollectAndCount(c); n != 6 {
		t.Errorf("CollectAndCount() = %d, want 6", n)
	}

	expected := `
# HELP corral_worker_connections Connections currently owned by the worker.
# TYPE corral_worker_connections gauge
corral_worker_connections{worker="0"} 3
corral_worker_connections{worker="1"} 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "corral_worker_connections"); err != nil {
		t.Error(err)
	}
}

func TestExporter(t *testing.T) {
	r := NewRegistry("corral")
	r.ConnAccepted("test")

	e := NewExporter("127.0.0.1:0", "/metrics", r, nil)
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Shutdown(context.Background())

	resp, err := http.Get("http://" + e.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `corral_connections_accepted_total{bind="test"} 1`) {
		t.Errorf("metric missing from scrape:\n%s", body)
	}
}

func TestExporter_ShutdownBeforeStart(t *testing.T) {
	e := NewExporter("127.0.0.1:0", "", NewRegistry("corral"), nil)
	if err := e.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if e.Addr() != nil {
		t.Error("Addr() before Start should be nil")
	}
}
