package localserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yndnr/corral-go/internal/server/engine"
)

// Controller is the part of the engine the control socket drives.
type Controller interface {
	Status() engine.Status
	Pause() error
	Resume() error
	Stop(grace time.Duration) engine.StopResult
	State() engine.ShutdownState
}

// StopSummary is the data of a stop response.
type StopSummary struct {
	Forced  bool          `json:"forced"`
	Elapsed time.Duration `json:"elapsed"`
	Workers []int         `json:"forced_workers,omitempty"`
}

// Handler executes control commands.
type Handler struct {
	ctl          Controller
	defaultGrace time.Duration
}

// NewHandler creates a new Handler. defaultGrace is used by stop without
// an argument.
func NewHandler(ctl Controller, defaultGrace time.Duration) *Handler {
	return &Handler{ctl: ctl, defaultGrace: defaultGrace}
}

// Execute runs one command.
func (h *Handler) Execute(cmd string, args []string) Response {
	switch cmd {
	case CmdStatus:
		return h.reply(h.ctl.Status(), nil)
	case CmdWorkers:
		return h.reply(h.ctl.Status().Workers, nil)
	case CmdPause:
		return h.reply(nil, h.ctl.Pause())
	case CmdResume:
		return h.reply(nil, h.ctl.Resume())
	case CmdStop:
		return h.handleStop(args)
	case "":
		return h.reply(nil, fmt.Errorf("empty command"))
	default:
		return h.reply(nil, fmt.Errorf("unknown command: %s", cmd))
	}
}

func (h *Handler) handleStop(args []string) Response {
	grace := h.defaultGrace
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil || d < 0 {
			return h.reply(nil, fmt.Errorf("invalid grace %q", args[0]))
		}
		grace = d
	}

	res := h.ctl.Stop(grace)
	sum := StopSummary{Forced: res.Forced, Elapsed: res.Elapsed}
	for _, w := range res.Workers {
		if w.Forced {
			sum.Workers = append(sum.Workers, w.ID)
		}
	}
	return h.reply(sum, nil)
}

func (h *Handler) reply(data any, err error) Response {
	resp := Response{OK: err == nil, State: h.ctl.State().String()}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	if data != nil {
		raw, mErr := json.Marshal(data)
		if mErr != nil {
			return Response{State: resp.State, Error: mErr.Error()}
		}
		resp.Data = raw
	}
	return resp
}
