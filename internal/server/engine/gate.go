package engine

import (
	"context"
	"sync"
	"time"
)

// aLongTimeAgo is a deadline in the past, used to interrupt a blocked
// Accept or Read immediately.
var aLongTimeAgo = time.Unix(1, 0)

// gate parks accept loops while the server is paused. Listener deadlines
// are only changed under mu, so a pause can never be undone by a loop that
// raced past the check.
type gate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	paused   bool
	closed   bool
	resume   chan struct{}
	inAccept int
}

func newGate() *gate {
	g := &gate{resume: make(chan struct{})}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// enter blocks while paused and then clears the listener deadline so the
// caller can Accept. It reports false once the gate is closed or ctx ends.
func (g *gate) enter(ctx context.Context, l *listener) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.waitLocked(ctx) {
		return false
	}
	_ = l.ln.SetDeadline(time.Time{})
	g.inAccept++
	return true
}

// leave is called when Accept returns.
func (g *gate) leave() {
	g.mu.Lock()
	g.inAccept--
	g.cond.Broadcast()
	g.mu.Unlock()
}

// hold parks a connection that was accepted concurrently with a pause
// until resume. It reports false once the gate is closed or ctx ends.
func (g *gate) hold(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waitLocked(ctx)
}

func (g *gate) waitLocked(ctx context.Context) bool {
	for g.paused && !g.closed {
		ch := g.resume
		g.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
		}
		g.mu.Lock()
		if ctx.Err() != nil {
			return false
		}
	}
	return !g.closed
}

// pause stops new accepts and returns once no loop is inside Accept.
func (g *gate) pause(listeners []*listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused || g.closed {
		return
	}
	g.paused = true
	g.resume = make(chan struct{})
	for _, l := range listeners {
		_ = l.ln.SetDeadline(aLongTimeAgo)
	}
	for g.inAccept > 0 && !g.closed {
		g.cond.Wait()
	}
}

func (g *gate) unpause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resume)
}

func (g *gate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	if g.paused {
		close(g.resume)
	}
	g.cond.Broadcast()
}
