package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	requestIDKey contextKey = "corral.request_id"
	connIDKey    contextKey = "corral.conn_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithConnID adds a connection ID to the context.
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// ConnIDFromContext extracts the connection ID from context.
func ConnIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(connIDKey).(string)
	return id
}

// contextHandler adds request_id and conn_id from the record's context
// unless the record already carries them.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	reqID, connID := RequestIDFromContext(ctx), ConnIDFromContext(ctx)
	if reqID != "" || connID != "" {
		r.Attrs(func(a slog.Attr) bool {
			switch a.Key {
			case "request_id":
				reqID = ""
			case "conn_id":
				connID = ""
			}
			return true
		})
		if reqID != "" || connID != "" {
			r = r.Clone()
		}
		if reqID != "" {
			r.AddAttrs(slog.String("request_id", reqID))
		}
		if connID != "" {
			r.AddAttrs(slog.String("conn_id", connID))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
