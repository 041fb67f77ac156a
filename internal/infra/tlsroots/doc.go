// Package tlsroots loads the TLS material of server binds.
//
//   - server.go: key pair and optional client CA pool into a *tls.Config
//   - watcher.go: key pair hot reload via fsnotify
//
// Material that is missing or does not match fails at bind time, before the
// server accepts a single connection.
package tlsroots
