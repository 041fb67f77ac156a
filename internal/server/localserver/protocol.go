package localserver

import (
	"encoding/json"
	"strings"
)

// Commands understood by the control socket.
const (
	CmdStatus  = "status"
	CmdWorkers = "workers"
	CmdPause   = "pause"
	CmdResume  = "resume"
	CmdStop    = "stop"
)

// Response is one line written back for each command.
type Response struct {
	OK    bool            `json:"ok"`
	State string          `json:"state,omitempty"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals Data into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// parseLine splits a request line into command and arguments.
func parseLine(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}
