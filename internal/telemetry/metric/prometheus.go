package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all server metrics.
type Registry struct {
	registry *prometheus.Registry

	connAccepted    *prometheus.CounterVec
	connClosed      *prometheus.CounterVec
	connErrors      *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upgrades        prometheus.Counter
	serverState     *prometheus.GaugeVec
	workersForced   prometheus.Counter
}

// NewRegistry creates a registry with the Go and process collectors plus the
// server metrics under namespace.
func NewRegistry(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		connAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Connections accepted, by bind address.",
		}, []string{"bind"}),
		connClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Connections closed, by reason.",
		}, []string{"reason"}),
		connErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_errors_total",
			Help:      "Connection-scoped errors, by kind.",
		}, []string{"kind"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests processed, by worker and status code.",
		}, []string{"worker", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent in the application handler.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"worker"}),
		upgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_upgraded_total",
			Help:      "Connections handed off to a protocol upgrade.",
		}),
		serverState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_state",
			Help:      "1 for the current shutdown state, 0 otherwise.",
		}, []string{"state"}),
		workersForced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_forced_total",
			Help:      "Workers forcibly terminated after the shutdown grace period.",
		}),
	}

	reg.MustRegister(
		r.connAccepted,
		r.connClosed,
		r.connErrors,
		r.requestsTotal,
		r.requestDuration,
		r.upgrades,
		r.serverState,
		r.workersForced,
	)
	return r
}

// Register adds an extra collector to the registry.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.registry.Register(c)
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ConnAccepted counts a connection accepted on bind.
func (r *Registry) ConnAccepted(bind string) {
	if r == nil {
		return
	}
	r.connAccepted.WithLabelValues(bind).Inc()
}

// ConnClosed counts a closed connection with the reason it closed.
func (r *Registry) ConnClosed(reason string) {
	if r == nil {
		return
	}
	r.connClosed.WithLabelValues(reason).Inc()
}

// ConnError counts a connection-scoped error.
func (r *Registry) ConnError(kind string) {
	if r == nil {
		return
	}
	r.connErrors.WithLabelValues(kind).Inc()
}

// RequestDone records a completed request.
func (r *Registry) RequestDone(worker, code int, d time.Duration) {
	if r == nil {
		return
	}
	w := strconv.Itoa(worker)
	r.requestsTotal.WithLabelValues(w, strconv.Itoa(code)).Inc()
	r.requestDuration.WithLabelValues(w).Observe(d.Seconds())
}

// Upgraded counts a protocol upgrade.
func (r *Registry) Upgraded() {
	if r == nil {
		return
	}
	r.upgrades.Inc()
}

// SetState marks current as the active state among all.
func (r *Registry) SetState(current string, all []string) {
	if r == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		r.serverState.WithLabelValues(s).Set(v)
	}
}

// WorkerForced counts a worker terminated after the grace period.
func (r *Registry) WorkerForced() {
	if r == nil {
		return
	}
	r.workersForced.Inc()
}
