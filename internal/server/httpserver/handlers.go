package httpserver

import (
	"bufio"
	"context"
	"io"
	"maps"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/corral-go/internal/server/engine"
)

const (
	maxSleep     = 30 * time.Second
	defaultSleep = 100 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "worker": a.worker})
}

// WorkerInfo is the body of GET /worker.
type WorkerInfo struct {
	Worker   int    `json:"worker"`
	Requests uint64 `json:"requests"`
}

func (a *App) handleWorker(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, WorkerInfo{Worker: a.worker, Requests: a.requests})
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	var snap Stats
	a.stats.Read(func(s Stats) {
		snap = Stats{Total: s.Total, PerWorker: maps.Clone(s.PerWorker)}
	})
	writeJSON(w, http.StatusOK, snap)
}

// handleSleep waits for d without blocking the worker's other connections.
func (a *App) handleSleep(w http.ResponseWriter, r *http.Request) {
	d := defaultSleep
	if v := r.URL.Query().Get("d"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		d = min(parsed, maxSleep)
	}

	start := time.Now()
	err := engine.Await(r.Context(), func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "interrupted")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"worker": a.worker,
		"slept":  time.Since(start).Round(time.Millisecond).String(),
	})
}

func (a *App) handleClose(w http.ResponseWriter, _ *http.Request) {
	engine.SetConnectionType(w, engine.ConnForceClose)
	writeJSON(w, http.StatusOK, map[string]any{"worker": a.worker, "closing": true})
}

func (a *App) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	for {
		mt, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if err := ws.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}

// handleEchoUpgrade switches to a raw protocol that echoes every byte.
func (a *App) handleEchoUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Upgrade") == "" {
		w.Header().Set("Upgrade", "echo")
		writeError(w, http.StatusUpgradeRequired, "upgrade required")
		return
	}
	err := engine.Upgrade(w, "echo", func(ctx context.Context, conn net.Conn, rw *bufio.ReadWriter) {
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()
		_, _ = io.Copy(conn, rw.Reader)
	})
	if err != nil {
		writeError(w, http.StatusNotImplemented, err.Error())
	}
}
