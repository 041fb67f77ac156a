// Command corral-server runs the multi-worker HTTP server with the demo
// application.
//
// Usage:
//
//	corral-server --config /etc/corral/corral.yaml
//	corral-server --bind plain://127.0.0.1:8080 --workers 4 --keep-alive timeout:5s
//
// SIGTERM stops the server within the configured shutdown timeout; SIGINT
// and SIGQUIT stop it at once. corral-cli drives it over the control socket.
package main
