package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/corral-go/internal/cli/output"
	"github.com/yndnr/corral-go/internal/server/config"
	"github.com/yndnr/corral-go/internal/server/engine"
	"github.com/yndnr/corral-go/internal/server/localserver"
)

// StatusCommand shows the server state and its workers.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show server state, binds and workers",
		Action: statusAction,
	}
}

// WorkersCommand lists per-worker counters.
func WorkersCommand() *cli.Command {
	return &cli.Command{
		Name:   "workers",
		Usage:  "List workers with their connection and request counters",
		Action: workersAction,
	}
}

// PauseCommand stops accepting new connections.
func PauseCommand() *cli.Command {
	return &cli.Command{
		Name:   "pause",
		Usage:  "Stop accepting connections; open ones keep being served",
		Action: stateAction(localserver.CmdPause),
	}
}

// ResumeCommand resumes accepting.
func ResumeCommand() *cli.Command {
	return &cli.Command{
		Name:   "resume",
		Usage:  "Accept connections again after pause",
		Action: stateAction(localserver.CmdResume),
	}
}

// StopCommand stops the server gracefully.
func StopCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Stop the server, waiting up to --grace for open connections",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "grace",
				Usage: "grace period; 0 uses the server's shutdown timeout",
			},
		},
		Action: stopAction,
	}
}

func statusAction(c *cli.Context) error {
	resp, err := execute(c, 0, localserver.CmdStatus)
	if err != nil {
		return err
	}
	var st engine.Status
	if err := resp.Decode(&st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	format := ParseGlobalFlags(c).Output
	if format != output.FormatTable {
		return render(c, format, st)
	}

	w := stdout(c)
	fmt.Fprintf(w, "State:      %s\n", st.State)
	fmt.Fprintf(w, "Uptime:     %s\n", st.Uptime)
	fmt.Fprintf(w, "Keep-alive: %s\n", st.KeepAlive)
	fmt.Fprintf(w, "Selection:  %s\n", st.Selection)
	for _, b := range st.Binds {
		fmt.Fprintf(w, "Bind:       %s\n", b)
	}
	fmt.Fprintln(w)
	return render(c, output.FormatTable, st.Workers)
}

func workersAction(c *cli.Context) error {
	resp, err := execute(c, 0, localserver.CmdWorkers)
	if err != nil {
		return err
	}
	var workers []engine.WorkerStatus
	if err := resp.Decode(&workers); err != nil {
		return fmt.Errorf("decode workers: %w", err)
	}
	return render(c, ParseGlobalFlags(c).Output, workers)
}

type stateResult struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
}

func stateAction(cmd string) cli.ActionFunc {
	return func(c *cli.Context) error {
		resp, err := execute(c, 0, cmd)
		if err != nil {
			return err
		}
		format := ParseGlobalFlags(c).Output
		if format != output.FormatTable {
			return render(c, format, stateResult{OK: true, State: resp.State})
		}
		fmt.Fprintf(stdout(c), "server is %s\n", resp.State)
		return nil
	}
}

type stopResult struct {
	State   string        `json:"state"`
	Forced  bool          `json:"forced"`
	Elapsed time.Duration `json:"elapsed"`
	Workers []int         `json:"forced_workers,omitempty"`
}

func stopAction(c *cli.Context) error {
	grace := c.Duration("grace")
	var args []string
	if grace > 0 {
		args = append(args, grace.String())
	}

	format := ParseGlobalFlags(c).Output
	var spin *output.Spinner
	if format == output.FormatTable {
		spin = output.NewSpinner(c.App.ErrWriter, "stopping server")
		spin.Start()
	}

	// The answer comes after the grace period at most, plus the time
	// needed to terminate the rest. Without --grace the server applies its
	// own shutdown timeout, assumed to be the default.
	wait := grace
	if wait == 0 {
		wait = config.DefaultShutdownTimeout
	}
	resp, err := execute(c, wait+5*time.Second, localserver.CmdStop, args...)
	if err != nil {
		if spin != nil {
			spin.Stop("")
		}
		return err
	}
	var sum localserver.StopSummary
	if err := resp.Decode(&sum); err != nil {
		if spin != nil {
			spin.Stop("")
		}
		return fmt.Errorf("decode stop result: %w", err)
	}

	res := stopResult{State: resp.State, Forced: sum.Forced, Elapsed: sum.Elapsed, Workers: sum.Workers}
	if spin == nil {
		return render(c, format, res)
	}
	msg := fmt.Sprintf("server %s after %s", res.State, res.Elapsed)
	if res.Forced {
		msg += fmt.Sprintf(", workers %v terminated after the grace period", res.Workers)
	}
	spin.Stop(msg)
	return nil
}
