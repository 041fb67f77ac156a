// Package localserver serves the control socket of corral-server.
//
// The socket speaks a line protocol: one command per line, one JSON object
// per response line.
//
//	status            server state, binds and per-worker counters
//	workers           per-worker counters only
//	pause             stop accepting; live connections keep working
//	resume            accept again
//	stop [grace]      graceful stop, grace as a Go duration
//
// Responses look like {"ok":true,"state":"Running","data":{...}}; failures
// carry "error" instead of "data".
//
// Access is controlled by file system permissions on the socket; there is
// no other authentication.
package localserver
