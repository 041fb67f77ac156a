package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/corral-go/internal/cli/connection"
	"github.com/yndnr/corral-go/internal/cli/output"
	"github.com/yndnr/corral-go/internal/infra/buildinfo"
	"github.com/yndnr/corral-go/internal/server/config"
	"github.com/yndnr/corral-go/internal/server/localserver"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "corral-cli",
		Usage:   "Control a running corral-server",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			StatusCommand(),
			WorkersCommand(),
			PauseCommand(),
			ResumeCommand(),
			StopCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "socket",
			Aliases: []string{"s"},
			Usage:   "control socket of the server",
			EnvVars: []string{"CORRAL_SOCKET"},
			Value:   config.DefaultControlSocket,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "how long to wait for the server to answer",
			Value: connection.DefaultTimeout,
		},
	}
}

// GlobalFlags are the flags shared by every command.
type GlobalFlags struct {
	Socket  string
	Output  output.Format
	Timeout time.Duration
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Socket:  c.String("socket"),
		Output:  output.Format(c.String("output")),
		Timeout: c.Duration("timeout"),
	}
}

// execute sends one command. extra extends the timeout for commands that
// wait on the server.
func execute(c *cli.Context, extra time.Duration, cmd string, args ...string) (*localserver.Response, error) {
	flags := ParseGlobalFlags(c)
	ctx, cancel := context.WithTimeout(c.Context, flags.Timeout+extra)
	defer cancel()

	client := connection.NewSocketClient(flags.Socket)
	defer client.Close()

	return client.Execute(ctx, cmd, args...)
}

// render writes data in the selected format.
func render(c *cli.Context, format output.Format, data any) error {
	return output.NewFormatter(format).Format(stdout(c), data)
}

func stdout(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
