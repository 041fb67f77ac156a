package engine

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http2"

	"github.com/yndnr/corral-go/internal/telemetry/logger"
)

// connState is the Connection Handler state.
type connState int32

const (
	connNegotiating connState = iota
	connProcessing
	connKeepAliveWait
	connUpgraded
	connClosing
	connClosed
)

func (s connState) String() string {
	switch s {
	case connNegotiating:
		return "Negotiating"
	case connProcessing:
		return "Processing"
	case connKeepAliveWait:
		return "KeepAliveWait"
	case connUpgraded:
		return "Upgraded"
	case connClosing:
		return "Closing"
	}
	return "Closed"
}

var (
	errHeaderTooLarge     = errors.New("request header too large")
	errUnsupportedVersion = errors.New("unsupported HTTP version")
	errMissingHost        = errors.New("missing required Host header")
)

// conn runs the lifecycle of one accepted connection. Only its own
// goroutine reads and writes the socket; other goroutines touch it through
// interruptIfIdle and forceClose.
type conn struct {
	id     string
	w      *Worker
	bind   *Binding
	cfg    *Config
	raw    net.Conn
	rwc    net.Conn
	remote string
	logger *slog.Logger

	lr *io.LimitedReader
	br *bufio.Reader
	bw *bufio.Writer

	mu       sync.Mutex
	state    connState
	idle     bool
	detached bool

	// reason is why the connection closed; owned by the serving goroutine.
	reason   string
	linger   bool
	doneOnce sync.Once
}

func newConn(w *Worker, b *Binding, rwc net.Conn) *conn {
	raw := rwc
	if tc, ok := rwc.(*tls.Conn); ok {
		raw = tc.NetConn()
	}
	id := ulid.Make().String()
	remote := rwc.RemoteAddr().String()
	return &conn{
		id:     id,
		w:      w,
		bind:   b,
		cfg:    &w.srv.cfg,
		raw:    raw,
		rwc:    rwc,
		remote: remote,
		logger: w.logger.With("conn_id", id, "remote", remote),
		reason: "closed",
	}
}

func (c *conn) serve() {
	ctx, cancel := context.WithCancel(c.w.ctx)
	defer cancel()
	defer func() {
		if c.isDetached() {
			return
		}
		c.close()
		c.done()
	}()

	if tc, ok := c.rwc.(*tls.Conn); ok {
		if err := c.handshake(ctx, tc); err != nil {
			c.connError(ConnErrTLSHandshake, err)
			c.reason = "tls_error"
			return
		}
		if c.bind.spec.HTTP2 && tc.ConnectionState().NegotiatedProtocol == http2.NextProtoTLS {
			c.serveH2(ctx, tc)
			return
		}
	}

	c.lr = &io.LimitedReader{R: c.rwc, N: math.MaxInt64}
	c.br = bufio.NewReaderSize(c.lr, 4<<10)
	c.bw = bufio.NewWriterSize(c.rwc, 4<<10)

	for first := true; ; first = false {
		if !c.awaitRequest(first) {
			return
		}
		req, err := c.readRequest()
		if err != nil {
			c.rejectRequest(err)
			return
		}
		if !c.process(ctx, req) {
			return
		}
	}
}

func (c *conn) handshake(ctx context.Context, tc *tls.Conn) error {
	_ = tc.SetDeadline(time.Now().Add(c.cfg.ClientRequestTimeout))
	if err := tc.HandshakeContext(ctx); err != nil {
		return err
	}
	return tc.SetDeadline(time.Time{})
}

// awaitRequest waits for the first byte of the next request. The first
// request must start within the client request timeout; later ones within
// the keep-alive interval.
func (c *conn) awaitRequest(first bool) bool {
	st, deadline := connKeepAliveWait, c.cfg.KeepAlive.idleDeadline(time.Now())
	if first {
		st, deadline = connNegotiating, time.Now().Add(c.cfg.ClientRequestTimeout)
	}
	if !c.setIdle(st, deadline) {
		c.reason = "shutdown"
		return false
	}

	_, err := c.br.Peek(1)
	running := c.setBusy()
	if err != nil {
		switch {
		case !running:
			c.reason = "shutdown"
		case isTimeout(err) && first:
			c.reason = "request_timeout"
			c.connError(ConnErrTimeout, err)
		case isTimeout(err):
			c.reason = "keepalive_expired"
		case errors.Is(err, io.EOF):
			c.reason = "client_closed"
		default:
			c.reason = "read_error"
			c.connError(ConnErrReset, err)
		}
		return false
	}
	if !running {
		c.reason = "shutdown"
		return false
	}
	if !first {
		_ = c.rwc.SetReadDeadline(time.Now().Add(c.cfg.ClientRequestTimeout))
	}
	return true
}

// setIdle enters a waiting state. The deadline is armed under mu so a
// concurrent stop cannot be overwritten.
func (c *conn) setIdle(st connState, deadline time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w.stopping.Load() {
		return false
	}
	c.state = st
	c.idle = true
	_ = c.rwc.SetReadDeadline(deadline)
	return true
}

func (c *conn) setBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idle = false
	c.state = connNegotiating
	return !c.w.stopping.Load()
}

func (c *conn) setState(st connState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

func (c *conn) currentState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *conn) isDetached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detached
}

// interruptIfIdle wakes a connection blocked waiting for a request so it
// closes; busy connections are left alone.
func (c *conn) interruptIfIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idle {
		_ = c.rwc.SetReadDeadline(aLongTimeAgo)
	}
}

func (c *conn) forceClose() {
	_ = c.raw.Close()
}

func (c *conn) readRequest() (*http.Request, error) {
	c.lr.N = maxHeaderBytes
	req, err := http.ReadRequest(c.br)
	if err != nil {
		if c.lr.N == 0 {
			return nil, errHeaderTooLarge
		}
		return nil, err
	}
	c.lr.N = math.MaxInt64
	_ = c.rwc.SetReadDeadline(time.Time{})

	if req.ProtoMajor != 1 {
		return nil, errUnsupportedVersion
	}
	if req.ProtoAtLeast(1, 1) && req.Host == "" {
		return nil, errMissingHost
	}
	delete(req.Header, "Host")
	req.RemoteAddr = c.remote
	return req, nil
}

// rejectRequest answers a request that never reached the application.
func (c *conn) rejectRequest(err error) {
	code, kind := http.StatusBadRequest, ConnErrMalformed
	c.reason = "malformed"
	switch {
	case errors.Is(err, errHeaderTooLarge):
		code = http.StatusRequestHeaderFieldsTooLarge
	case errors.Is(err, errUnsupportedVersion):
		code = http.StatusHTTPVersionNotSupported
	case isTimeout(err):
		code, kind = http.StatusRequestTimeout, ConnErrTimeout
		c.reason = "request_timeout"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.reason = "client_closed"
		return
	}
	c.connError(kind, err)

	c.setState(connClosing)
	body := fmt.Sprintf("%d %s", code, http.StatusText(code))
	_ = c.rwc.SetWriteDeadline(time.Now().Add(c.cfg.ClientDisconnectTimeout))
	_, _ = fmt.Fprintf(c.rwc, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nConnection: close\r\nContent-Length: %d\r\n\r\n%s",
		code, http.StatusText(code), len(body), body)
	c.linger = true
}

// process runs one request through Processing. It reports whether the
// connection goes on to KeepAliveWait.
func (c *conn) process(ctx context.Context, req *http.Request) bool {
	c.setState(connProcessing)
	c.w.inFlight.Add(1)
	inFlight := true
	defer func() {
		if inFlight {
			c.w.inFlight.Add(-1)
		}
	}()

	if d := c.cfg.WriteTimeout; d > 0 {
		_ = c.rwc.SetWriteDeadline(time.Now().Add(d))
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	reqCtx = context.WithValue(reqCtx, http.LocalAddrContextKey, c.rwc.LocalAddr())
	reqCtx = logger.WithConnID(reqCtx, c.id)
	reqCtx, span := c.cfg.Tracer.Start(reqCtx, "http.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
			attribute.String("network.protocol.version", fmt.Sprintf("%d.%d", req.ProtoMajor, req.ProtoMinor)),
			attribute.Int("corral.worker", c.w.id),
			attribute.String("corral.conn", c.id),
		))
	defer span.End()

	t := &task{w: c.w}
	reqCtx = context.WithValue(reqCtx, taskKey{}, t)

	body := req.Body
	res := newResponse(c, req, t)
	if req.ProtoAtLeast(1, 1) && req.ContentLength != 0 && headerHasToken(req.Header, "Expect", "100-continue") {
		res.expectContinue = true
		req.Body = &expectContinueReader{res: res, body: body}
	}
	if tc, ok := c.rwc.(*tls.Conn); ok {
		st := tc.ConnectionState()
		req.TLS = &st
	}
	req = req.WithContext(reqCtx)

	start := time.Now()
	if err := t.acquire(reqCtx); err != nil {
		c.reason = "shutdown"
		return false
	}
	c.runHandler(res, req)
	t.finish()
	elapsed := time.Since(start)
	c.w.inFlight.Add(-1)
	inFlight = false
	c.w.requests.Add(1)

	if res.hijacked {
		span.SetAttributes(attribute.Bool("corral.hijacked", true))
		c.w.srv.metrics.Upgraded()
		return false
	}

	err := res.finish()
	span.SetAttributes(attribute.Int("http.response.status_code", res.status))
	if res.status >= 500 {
		span.SetStatus(codes.Error, http.StatusText(res.status))
	}
	c.w.srv.metrics.RequestDone(c.w.id, res.status, elapsed)
	if err != nil {
		if errors.Is(err, errAborted) {
			c.reason = "aborted"
		} else {
			c.reason = "write_error"
			c.connError(ConnErrWrite, err)
		}
		return false
	}

	switch {
	case res.connType == ConnUpgrade && res.upgrade != nil:
		c.runUpgrade(ctx, res.upgrade)
		return false
	case res.connType != ConnKeepAlive:
		c.reason = "response_close"
		c.linger = true
		return false
	case !c.drain(body, res):
		c.reason = "unread_body"
		return false
	case c.w.stopping.Load():
		c.reason = "shutdown"
		return false
	}
	return true
}

func (c *conn) runHandler(res *response, req *http.Request) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		if v == http.ErrAbortHandler {
			res.aborted = true
			return
		}
		c.logger.Error("handler panic", "panic", v, "stack", string(debug.Stack()))
		c.connError(ConnErrHandlerPanic, fmt.Errorf("%v", v))
		if res.hijacked {
			return
		}
		if res.headerSent {
			res.aborted = true
			return
		}
		res.reset()
		res.explicit = ConnForceClose
		res.WriteHeader(http.StatusInternalServerError)
	}()
	c.w.app.ServeHTTP(res, req)
}

// drain discards what the handler left of the request body so the next
// request can be read. Large remainders close the connection instead.
func (c *conn) drain(body io.ReadCloser, res *response) bool {
	if res.expectContinue && !res.continueSent {
		return false
	}
	_ = c.rwc.SetReadDeadline(time.Now().Add(c.cfg.ClientRequestTimeout))
	n, err := io.CopyN(io.Discard, body, maxDrainBytes+1)
	_ = c.rwc.SetReadDeadline(time.Time{})
	switch {
	case errors.Is(err, http.ErrBodyReadAfterClose):
		return true
	case errors.Is(err, io.EOF):
		return n <= maxDrainBytes
	}
	return false
}

func (c *conn) runUpgrade(ctx context.Context, fn UpgradeFunc) {
	c.setState(connUpgraded)
	c.w.srv.metrics.Upgraded()
	c.reason = "upgraded"
	_ = c.rwc.SetDeadline(time.Time{})
	fn(ctx, c.rwc, bufio.NewReadWriter(c.br, c.bw))
}

// hijack detaches the connection from the serving goroutine. The returned
// conn reports back to the worker when the new owner closes it.
func (c *conn) hijack(t *task) net.Conn {
	t.detach()
	c.mu.Lock()
	c.state = connUpgraded
	c.idle = false
	c.detached = true
	c.mu.Unlock()
	_ = c.rwc.SetDeadline(time.Time{})
	return &hijackedConn{Conn: c.rwc, c: c}
}

type hijackedConn struct {
	net.Conn
	c    *conn
	once sync.Once
}

func (h *hijackedConn) Close() error {
	err := h.Conn.Close()
	h.once.Do(func() {
		h.c.setState(connClosed)
		h.c.w.srv.metrics.ConnClosed("upgraded")
		h.c.done()
	})
	return err
}

func (c *conn) close() {
	c.setState(connClosing)
	if c.linger {
		c.closeWriteAndWait()
	}
	_ = c.rwc.Close()
	c.setState(connClosed)
	c.w.srv.metrics.ConnClosed(c.reason)
	c.logger.Debug("connection closed", "reason", c.reason)
}

// closeWriteAndWait shuts down the write side and gives the peer a short
// window to close, so a reset does not discard the final response.
func (c *conn) closeWriteAndWait() {
	if c.bw != nil {
		_ = c.bw.Flush()
	}
	type closeWriter interface{ CloseWrite() error }
	if cw, ok := c.rwc.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
	_ = c.rwc.SetReadDeadline(time.Now().Add(c.cfg.ClientDisconnectTimeout))
	_, _ = io.CopyN(io.Discard, c.rwc, maxDrainBytes)
}

func (c *conn) done() {
	c.doneOnce.Do(func() { c.w.connDone(c) })
}

// resolveConnType decides the fate of the connection when headers are
// written.
func (c *conn) resolveConnType(r *response) ConnectionType {
	explicit := r.explicit
	if explicit == ConnUnset {
		explicit = explicitFromHeader(r.header)
	}
	ct := ResolveConnectionType(explicit, r.req.ProtoMajor, r.req.ProtoMinor, r.req.Header)
	if ct == ConnUpgrade && (r.upgrade == nil || r.status != http.StatusSwitchingProtocols) {
		ct = ConnClose
	}
	ct = applyPolicy(ct, c.cfg.KeepAlive, c.w.stopping.Load())
	if ct == ConnKeepAlive {
		if r.closeDelimited || (r.expectContinue && !r.continueSent) {
			ct = ConnClose
		}
	}
	return ct
}

func (c *conn) connError(kind ConnErrorKind, err error) {
	ce := &ConnectionError{ConnID: c.id, Kind: kind, Err: err}
	c.w.srv.metrics.ConnError(string(kind))
	c.logger.Debug("connection error", "error", ce)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
