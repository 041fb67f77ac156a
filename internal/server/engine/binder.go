package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// Binding is one configured address. It owns one socket, or one socket per
// worker when the kernel distributes connections (reuse_port).
type Binding struct {
	spec      BindSpec
	tlsConfig *tls.Config
	listeners []*listener
}

// Addr returns the bound address; with port 0 this carries the real port.
func (b *Binding) Addr() net.Addr {
	return b.listeners[0].ln.Addr()
}

// Scheme returns the bind scheme.
func (b *Binding) Scheme() Scheme { return b.spec.Scheme }

func (b *Binding) String() string {
	return string(b.spec.Scheme) + "://" + b.Addr().String()
}

type listener struct {
	bind *Binding
	ln   *net.TCPListener
	// pinned is the only worker served by this socket under reuse_port.
	pinned int
}

type binder struct {
	bindings  []*Binding
	gate      *gate
	limiter   *rate.Limiter
	reusePort bool
	workers   int
	logger    *slog.Logger

	wg sync.WaitGroup
}

func newBinder(cfg *Config) *binder {
	b := &binder{
		gate:      newGate(),
		reusePort: cfg.Selection == SelectReusePort,
		workers:   cfg.Workers,
		logger:    cfg.Logger,
	}
	if cfg.AcceptRate > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst)
	}
	return b
}

// bind validates spec and opens its socket(s) immediately.
func (b *binder) bind(spec BindSpec) (*Binding, error) {
	if spec.Scheme == "" {
		spec.Scheme = SchemePlain
	}
	bindErr := func(reason string, err error) error {
		return &BindError{Addr: spec.Addr, Scheme: spec.Scheme, Reason: reason, Err: err}
	}

	bd := &Binding{spec: spec}
	switch spec.Scheme {
	case SchemePlain:
	case SchemeTLS:
		cfg, err := serverTLSConfig(spec)
		if err != nil {
			return nil, bindErr("tls material", err)
		}
		bd.tlsConfig = cfg
	default:
		return nil, bindErr("unsupported scheme", nil)
	}

	count := 1
	lc := net.ListenConfig{KeepAlive: -1}
	if b.reusePort {
		count = b.workers
		lc.Control = reusePortControl
	}

	addr := spec.Addr
	for i := 0; i < count; i++ {
		ln, err := lc.Listen(context.Background(), "tcp", addr)
		if err != nil {
			_ = closeListeners(bd.listeners)
			return nil, bindErr("listen", err)
		}
		tl, ok := ln.(*net.TCPListener)
		if !ok {
			_ = ln.Close()
			_ = closeListeners(bd.listeners)
			return nil, bindErr("listen", fmt.Errorf("unexpected listener type %T", ln))
		}
		bd.listeners = append(bd.listeners, &listener{bind: bd, ln: tl, pinned: i})
		// Later sockets of a reuse_port group must share the first's port.
		addr = tl.Addr().String()
	}

	b.bindings = append(b.bindings, bd)
	return bd, nil
}

func serverTLSConfig(spec BindSpec) (*tls.Config, error) {
	var cfg *tls.Config
	switch {
	case spec.TLSConfig != nil:
		cfg = spec.TLSConfig.Clone()
	case spec.CertFile != "" && spec.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(spec.CertFile, spec.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	default:
		return nil, errors.New("certificate and key are required")
	}
	if len(cfg.Certificates) == 0 && cfg.GetCertificate == nil && cfg.GetConfigForClient == nil {
		return nil, errors.New("tls config carries no certificate")
	}
	if len(cfg.NextProtos) == 0 {
		if spec.HTTP2 {
			cfg.NextProtos = []string{http2.NextProtoTLS, "http/1.1"}
		} else {
			cfg.NextProtos = []string{"http/1.1"}
		}
	}
	return cfg, nil
}

func (b *binder) listeners() []*listener {
	var all []*listener
	for _, bd := range b.bindings {
		all = append(all, bd.listeners...)
	}
	return all
}

// start launches one accept loop per socket.
func (b *binder) start(ctx context.Context, p *pool) {
	for _, l := range b.listeners() {
		b.wg.Add(1)
		go b.acceptLoop(ctx, l, p)
	}
}

func (b *binder) acceptLoop(ctx context.Context, l *listener, p *pool) {
	defer b.wg.Done()

	var pinned *Worker
	if b.reusePort {
		pinned = p.workers[l.pinned]
	}
	name := l.bind.String()

	var tempDelay time.Duration
	for {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return
			}
		}
		if !b.gate.enter(ctx, l) {
			return
		}
		nc, err := l.ln.Accept()
		b.gate.leave()

		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// Interrupted by pause.
				continue
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else if tempDelay *= 2; tempDelay > time.Second {
				tempDelay = time.Second
			}
			b.logger.Warn("accept error; retrying", "bind", name, "error", err, "delay", tempDelay)
			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		tempDelay = 0

		if !b.gate.hold(ctx) {
			_ = nc.Close()
			return
		}

		w, err := p.admit(ctx, nc.RemoteAddr(), pinned)
		if err != nil {
			_ = nc.Close()
			return
		}
		w.srv.metrics.ConnAccepted(name)
		w.serve(nc, l.bind)
	}
}

func (b *binder) pause() {
	b.gate.pause(b.listeners())
}

func (b *binder) resume() {
	b.gate.unpause()
}

// close stops accepting, closes every socket and waits for the accept
// loops to exit.
func (b *binder) close() error {
	b.gate.close()
	err := closeListeners(b.listeners())
	b.wg.Wait()
	return err
}

func closeListeners(ls []*listener) error {
	var err error
	for _, l := range ls {
		if cerr := l.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	return err
}
