// Command corral-cli controls a running corral-server over its control
// socket.
//
// Usage:
//
//	corral-cli status
//	corral-cli --output json workers
//	corral-cli pause
//	corral-cli stop --grace 10s
package main

import (
	"os"

	"github.com/yndnr/corral-go/internal/cli/command"
)

func main() {
	if err := command.App().Run(os.Args); err != nil {
		command.PrintError("%v", err)
		os.Exit(1)
	}
}
