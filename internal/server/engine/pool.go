package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// admitRetry bounds how long a full pool waits before probing again when
// a capacity signal was coalesced.
const admitRetry = 50 * time.Millisecond

type pool struct {
	workers  []*Worker
	sel      selector
	maxConns int64
	// freed carries at most one pending "capacity available" signal.
	freed chan struct{}
}

func newPool(workers []*Worker, sel selector, maxConns int) *pool {
	p := &pool{
		workers:  workers,
		sel:      sel,
		maxConns: int64(maxConns),
		freed:    make(chan struct{}, 1),
	}
	for _, w := range workers {
		w.pool = p
	}
	return p
}

// admit reserves capacity for one connection on exactly one worker. With
// pinned set only that worker is eligible. It blocks while every eligible
// worker is full.
func (p *pool) admit(ctx context.Context, remote net.Addr, pinned *Worker) (*Worker, error) {
	waited := false
	for {
		if w := p.tryAdmit(remote, pinned); w != nil {
			if waited {
				p.signal()
			}
			return w, nil
		}
		waited = true

		t := time.NewTimer(admitRetry)
		select {
		case <-p.freed:
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
		t.Stop()
	}
}

func (p *pool) tryAdmit(remote net.Addr, pinned *Worker) *Worker {
	if pinned != nil {
		if pinned.tryAdmit(p.maxConns) {
			return pinned
		}
		return nil
	}
	n := len(p.workers)
	start := p.sel.start(p.workers, remote)
	for i := 0; i < n; i++ {
		w := p.workers[(start+i)%n]
		if w.tryAdmit(p.maxConns) {
			return w
		}
	}
	return nil
}

func (p *pool) signal() {
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// buildApplications runs the factory once per worker slot, concurrently.
// The first failure cancels the rest and every application already built
// is closed.
func buildApplications(ctx context.Context, n int, factory ApplicationFactory) ([]Application, error) {
	apps := make([]Application, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &WorkerConstructionError{Worker: i, Err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
				}
			}()
			app, err := factory(gctx, i)
			if err != nil {
				return &WorkerConstructionError{Worker: i, Err: err}
			}
			if app == nil {
				return &WorkerConstructionError{Worker: i, Err: fmt.Errorf("factory returned nil application")}
			}
			apps[i] = app
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = closeApplications(apps)
		return nil, err
	}
	return apps, nil
}

func closeApplications(apps []Application) error {
	var err error
	for _, app := range apps {
		if c, ok := app.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
