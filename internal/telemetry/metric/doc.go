// Package metric provides Prometheus metrics for corral.
//
//   - prometheus.go: registry with connection, request and shutdown metrics
//   - collector.go: per-worker gauges sampled at scrape time
//   - exporter.go: the /metrics listener
//
// Every recording method is safe on a nil *Registry, so the engine can run
// without metrics configured.
package metric
