package engine

import (
	"time"

	"github.com/yndnr/corral-go/internal/telemetry/metric"
)

// Status is a snapshot of the whole server.
type Status struct {
	State     ShutdownState  `json:"state"`
	Binds     []string       `json:"binds"`
	KeepAlive string         `json:"keep_alive"`
	Selection Selection      `json:"selection"`
	Uptime    time.Duration  `json:"uptime"`
	Workers   []WorkerStatus `json:"workers"`
}

// Status reports the server state and per-worker counters.
func (s *Server) Status() Status {
	s.ctl.Lock()
	started, startedAt := s.started, s.startedAt
	workers := s.workers
	binds := make([]string, 0, len(s.binder.bindings))
	for _, b := range s.binder.bindings {
		binds = append(binds, b.String())
	}
	s.ctl.Unlock()

	st := Status{
		State:     s.state.load(),
		Binds:     binds,
		KeepAlive: s.cfg.KeepAlive.String(),
		Selection: s.cfg.Selection,
		Workers:   make([]WorkerStatus, 0, len(workers)),
	}
	if started && !startedAt.IsZero() {
		st.Uptime = time.Since(startedAt).Truncate(time.Millisecond)
	}
	for _, w := range workers {
		st.Workers = append(st.Workers, w.status())
	}
	return st
}

// WorkerSamples feeds the per-worker metric collector.
func (s *Server) WorkerSamples() []metric.WorkerSample {
	st := s.Status()
	out := make([]metric.WorkerSample, 0, len(st.Workers))
	for _, w := range st.Workers {
		out = append(out, metric.WorkerSample{
			ID:          w.ID,
			Connections: w.Connections,
			InFlight:    w.InFlight,
			Requests:    w.Requests,
		})
	}
	return out
}
