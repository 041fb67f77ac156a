// Package command defines the corral-cli commands.
//
// Every command opens the control socket of a running corral-server, sends
// one line and renders the JSON answer with internal/cli/output.
package command
