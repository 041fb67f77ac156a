// Package httpserver provides the demo application served by corral-server.
//
// Factory builds one chi router per worker. Each router owns private state
// (its request counter) and shares only a Stats handle across workers.
//
// Routes:
//
//	GET /health        liveness
//	GET /worker        worker id and its private counter
//	GET /stats         counters of every worker
//	GET /sleep?d=100ms waits without holding the worker
//	GET /close         responds, then closes the connection
//	GET /ws            websocket echo
//	GET /echo-upgrade  raw byte echo after 101 Switching Protocols
package httpserver
