//go:build windows

package shutdown

import (
	"os"
	"syscall"
)

var handledSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

var signalSeverity = map[os.Signal]Severity{
	os.Interrupt:    Forced,
	syscall.SIGTERM: Graceful,
}
