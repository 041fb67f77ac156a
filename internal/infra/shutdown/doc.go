// Package shutdown turns process termination signals into stop requests.
//
//   - gateway.go: Signal Gateway mapping OS signals to a Severity
//   - hooks.go: reverse-order cleanup of auxiliary resources
//
// Unix maps SIGINT and SIGQUIT to Forced and SIGTERM to Graceful; Windows
// maps os.Interrupt to Forced and SIGTERM to Graceful.
package shutdown
