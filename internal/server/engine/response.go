package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"strconv"
	"time"
)

const (
	// bufferBeforeStreaming is how much body is held back to compute a
	// Content-Length before switching to a streamed body.
	bufferBeforeStreaming = 4 << 10
	maxHeaderBytes        = 1 << 20
	maxDrainBytes         = 256 << 10
)

var (
	// ErrUpgradeUnsupported is returned by Upgrade for writers that do not
	// come from the engine.
	ErrUpgradeUnsupported = errors.New("engine: response does not support upgrade")
	// ErrResponseStarted is returned by Upgrade after the status was set.
	ErrResponseStarted = errors.New("engine: response already started")

	errAborted = errors.New("engine: handler aborted response")
)

// UpgradeFunc takes over a connection after a 101 response. It runs outside
// the worker's execution slot; the connection is closed when it returns.
type UpgradeFunc func(ctx context.Context, conn net.Conn, rw *bufio.ReadWriter)

// Upgrade switches the connection to proto once the handler returns. The
// 101 response is flushed first, then fn owns the connection.
func Upgrade(w http.ResponseWriter, proto string, fn UpgradeFunc) error {
	res := unwrapResponse(w)
	if res == nil {
		return ErrUpgradeUnsupported
	}
	if res.wroteHeader || res.hijacked {
		return ErrResponseStarted
	}
	res.header.Set("Connection", "Upgrade")
	res.header.Set("Upgrade", proto)
	res.upgrade = fn
	res.explicit = ConnUpgrade
	res.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

// response is the http.ResponseWriter for one HTTP/1.x request.
type response struct {
	c    *conn
	req  *http.Request
	task *task

	header      http.Header
	status      int
	wroteHeader bool
	headerSent  bool

	buf            bytes.Buffer
	chunked        bool
	closeDelimited bool
	cw             io.WriteCloser
	contentLength  int64
	written        int64

	explicit ConnectionType
	connType ConnectionType

	hijacked bool
	aborted  bool
	upgrade  UpgradeFunc

	expectContinue bool
	continueSent   bool
}

func newResponse(c *conn, req *http.Request, t *task) *response {
	return &response{
		c:             c,
		req:           req,
		task:          t,
		header:        make(http.Header),
		contentLength: -1,
	}
}

func (r *response) Header() http.Header { return r.header }

func (r *response) WriteHeader(code int) {
	if r.hijacked {
		r.c.logger.Warn("WriteHeader on hijacked connection", "code", code)
		return
	}
	if r.wroteHeader {
		r.c.logger.Debug("superfluous WriteHeader call", "code", code)
		return
	}
	if code < 100 || code > 999 {
		panic(fmt.Sprintf("invalid WriteHeader code %v", code))
	}
	if code < 200 && code != http.StatusSwitchingProtocols {
		r.writeInformational(code)
		return
	}

	r.wroteHeader = true
	r.status = code
	if cl := r.header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err == nil && n >= 0 {
			r.contentLength = n
		} else {
			r.c.logger.Warn("invalid Content-Length set by handler", "value", cl)
			r.header.Del("Content-Length")
		}
	}
}

func (r *response) writeInformational(code int) {
	bw := r.c.bw
	writeStatusLine(bw, code)
	_ = r.header.Write(bw)
	_, _ = bw.WriteString("\r\n")
	_ = bw.Flush()
}

func (r *response) Write(p []byte) (int, error) {
	if r.hijacked {
		return 0, http.ErrHijacked
	}
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !bodyAllowedForStatus(r.status) {
		return 0, http.ErrBodyNotAllowed
	}
	if r.contentLength >= 0 && r.written+int64(len(p)) > r.contentLength {
		return 0, http.ErrContentLength
	}
	r.written += int64(len(p))

	if r.req.Method == http.MethodHead {
		return len(p), nil
	}
	if r.headerSent {
		return r.writeBody(p)
	}

	r.buf.Write(p)
	if r.buf.Len() > bufferBeforeStreaming {
		r.sendHeader(false)
		if err := r.flushBuffer(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (r *response) writeBody(p []byte) (int, error) {
	var err error
	if r.chunked {
		_, err = r.cw.Write(p)
	} else {
		_, err = r.c.bw.Write(p)
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (r *response) flushBuffer() error {
	if r.buf.Len() == 0 {
		return nil
	}
	_, err := r.writeBody(r.buf.Bytes())
	r.buf.Reset()
	return err
}

func (r *response) bodyless() bool {
	return !bodyAllowedForStatus(r.status) || r.req.Method == http.MethodHead
}

// sendHeader puts the status line and headers on the wire. final means the
// handler has returned and the whole body sits in buf.
func (r *response) sendHeader(final bool) {
	if r.headerSent {
		return
	}
	r.headerSent = true
	h := r.header

	if _, ok := h["Date"]; !ok {
		h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}

	switch {
	case !bodyAllowedForStatus(r.status):
		h.Del("Content-Length")
		h.Del("Transfer-Encoding")
	case r.contentLength >= 0:
	case r.req.Method == http.MethodHead:
		if final && r.written > 0 {
			h.Set("Content-Length", strconv.FormatInt(r.written, 10))
		}
	case final:
		r.contentLength = int64(r.buf.Len())
		h.Set("Content-Length", strconv.FormatInt(r.contentLength, 10))
	case r.req.ProtoAtLeast(1, 1):
		r.chunked = true
		h.Set("Transfer-Encoding", "chunked")
	default:
		r.closeDelimited = true
	}

	if !r.bodyless() && r.buf.Len() > 0 && h.Get("Content-Type") == "" && h.Get("Content-Encoding") == "" {
		h.Set("Content-Type", http.DetectContentType(r.buf.Bytes()))
	}

	r.connType = r.c.resolveConnType(r)
	switch r.connType {
	case ConnKeepAlive:
		if !r.req.ProtoAtLeast(1, 1) {
			h.Set("Connection", "keep-alive")
		}
	case ConnUpgrade:
	default:
		h.Set("Connection", "close")
	}

	bw := r.c.bw
	writeStatusLine(bw, r.status)
	_ = h.Write(bw)
	_, _ = bw.WriteString("\r\n")
	if r.chunked {
		r.cw = httputil.NewChunkedWriter(bw)
	}
}

// finish completes the response after the handler returned.
func (r *response) finish() error {
	if r.aborted {
		return errAborted
	}
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}

	bw := r.c.bw
	if !r.headerSent {
		r.sendHeader(true)
		if !r.bodyless() {
			if err := r.flushBuffer(); err != nil {
				return err
			}
		}
	} else if r.chunked {
		if err := r.cw.Close(); err != nil {
			return err
		}
		if _, err := bw.WriteString("\r\n"); err != nil {
			return err
		}
	}

	// A short body breaks framing for the next request.
	if r.contentLength >= 0 && r.written != r.contentLength && !r.bodyless() {
		r.connType = ConnClose
	}
	return bw.Flush()
}

func (r *response) Flush() {
	_ = r.FlushError()
}

// FlushError is used by http.ResponseController.
func (r *response) FlushError() error {
	if r.hijacked {
		return http.ErrHijacked
	}
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if !r.headerSent {
		r.sendHeader(false)
		if !r.bodyless() {
			if err := r.flushBuffer(); err != nil {
				return err
			}
		}
	}
	return r.c.bw.Flush()
}

// Hijack hands the connection to the caller and moves it to the Upgraded
// state. The worker's execution slot is released.
func (r *response) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if r.hijacked {
		return nil, nil, http.ErrHijacked
	}
	if r.wroteHeader && !r.headerSent {
		r.sendHeader(true)
		if !r.bodyless() {
			_ = r.flushBuffer()
		}
	}
	if err := r.c.bw.Flush(); err != nil {
		return nil, nil, err
	}
	r.hijacked = true
	nc := r.c.hijack(r.task)
	return nc, bufio.NewReadWriter(r.c.br, r.c.bw), nil
}

// SetReadDeadline is used by http.ResponseController.
func (r *response) SetReadDeadline(t time.Time) error {
	return r.c.rwc.SetReadDeadline(t)
}

// SetWriteDeadline is used by http.ResponseController.
func (r *response) SetWriteDeadline(t time.Time) error {
	return r.c.rwc.SetWriteDeadline(t)
}

// reset discards an unsent response so an error status can replace it.
func (r *response) reset() {
	r.header = make(http.Header)
	r.status = 0
	r.wroteHeader = false
	r.buf.Reset()
	r.contentLength = -1
	r.written = 0
	r.upgrade = nil
}

func writeStatusLine(bw *bufio.Writer, code int) {
	text := http.StatusText(code)
	if text == "" {
		text = "status code " + strconv.Itoa(code)
	}
	_, _ = fmt.Fprintf(bw, "HTTP/1.1 %03d %s\r\n", code, text)
}

func bodyAllowedForStatus(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// expectContinueReader sends 100 Continue on the first body read.
type expectContinueReader struct {
	res  *response
	body io.ReadCloser
}

func (ecr *expectContinueReader) Read(p []byte) (int, error) {
	r := ecr.res
	if !r.continueSent && !r.headerSent && !r.hijacked {
		r.continueSent = true
		bw := r.c.bw
		_, _ = bw.WriteString("HTTP/1.1 100 Continue\r\n\r\n")
		_ = bw.Flush()
	}
	return ecr.body.Read(p)
}

func (ecr *expectContinueReader) Close() error {
	return ecr.body.Close()
}
