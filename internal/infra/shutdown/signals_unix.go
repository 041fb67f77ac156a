//go:build !windows

package shutdown

import (
	"os"
	"syscall"
)

var handledSignals = []os.Signal{syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM}

var signalSeverity = map[os.Signal]Severity{
	syscall.SIGINT:  Forced,
	syscall.SIGQUIT: Forced,
	syscall.SIGTERM: Graceful,
}
