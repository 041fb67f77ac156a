package engine

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// selector picks the first worker to offer a connection to. Admission
// probes onwards from there when that worker is full.
type selector interface {
	start(workers []*Worker, remote net.Addr) int
}

func newSelector(s Selection) (selector, error) {
	switch s {
	case SelectRoundRobin, SelectReusePort:
		return &roundRobin{}, nil
	case SelectLeastConn:
		return leastConn{}, nil
	case SelectIPHash:
		return ipHash{}, nil
	}
	return nil, fmt.Errorf("unknown worker selection %q", s)
}

type roundRobin struct {
	next atomic.Uint64
}

func (r *roundRobin) start(workers []*Worker, _ net.Addr) int {
	return int((r.next.Add(1) - 1) % uint64(len(workers)))
}

type leastConn struct{}

func (leastConn) start(workers []*Worker, _ net.Addr) int {
	best, bestN := 0, int64(-1)
	for i, w := range workers {
		n := w.admitted.Load()
		if bestN < 0 || n < bestN {
			best, bestN = i, n
		}
	}
	return best
}

// ipHash keeps every connection from one client IP on the same worker
// while it has capacity.
type ipHash struct{}

func (ipHash) start(workers []*Worker, remote net.Addr) int {
	return int(murmur3.Sum32([]byte(remoteIP(remote))) % uint32(len(workers)))
}

func remoteIP(a net.Addr) string {
	if a == nil {
		return ""
	}
	if tcp, ok := a.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	return host
}
