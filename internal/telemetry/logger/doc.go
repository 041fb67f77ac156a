// Package logger builds the slog loggers of corral.
//
//   - logger.go: handler construction and the process-wide level
//   - context.go: request and connection IDs carried by the context
//   - redact.go: sensitive data redaction
//
// Loggers from New add request_id and conn_id to records logged with a
// request context, so handlers can log through InfoContext and friends
// without repeating them.
package logger
