// Package connection talks to the corral-server control socket.
package connection
