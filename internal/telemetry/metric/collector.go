package metric

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerSample is a point-in-time view of one worker.
type WorkerSample struct {
	ID          int
	Connections int
	InFlight    int
	Requests    uint64
}

// Collector reports per-worker gauges sampled from the running server at
// scrape time.
type Collector struct {
	source func() []WorkerSample

	connections *prometheus.Desc
	inFlight    *prometheus.Desc
	requests    *prometheus.Desc
}

// NewCollector creates a collector reading samples from source.
func NewCollector(namespace string, source func() []WorkerSample) *Collector {
	return &Collector{
		source: source,
		connections: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "worker", "connections"),
			"Connections currently owned by the worker.",
			[]string{"worker"}, nil,
		),
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "worker", "in_flight"),
			"Requests currently being processed by the worker.",
			[]string{"worker"}, nil,
		),
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "worker", "requests"),
			"Requests processed by the worker since start.",
			[]string{"worker"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.inFlight
	ch <- c.requests
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source() {
		id := strconv.Itoa(s.ID)
		ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(s.Connections), id)
		ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(s.InFlight), id)
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.Requests), id)
	}
}
