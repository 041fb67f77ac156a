package engine

import (
	"fmt"
	"sync/atomic"
)

// ShutdownState is the process-wide lifecycle state owned by the Server.
type ShutdownState int32

const (
	StateRunning ShutdownState = iota
	StatePausing
	StatePaused
	StateStopping
	StateStopped
)

var stateNames = [...]string{"Running", "Pausing", "Paused", "Stopping", "Stopped"}

func (s ShutdownState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("ShutdownState(%d)", int32(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name for JSON status output.
func (s ShutdownState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *ShutdownState) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = ShutdownState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown shutdown state %q", b)
}

// StateNames lists every state name in lifecycle order.
func StateNames() []string {
	return stateNames[:]
}

// canTransition encodes the only permitted edges. Stopped is terminal.
func canTransition(from, to ShutdownState) bool {
	switch from {
	case StateRunning:
		return to == StatePausing || to == StateStopping
	case StatePausing:
		return to == StatePaused
	case StatePaused:
		return to == StateRunning || to == StateStopping
	case StateStopping:
		return to == StateStopped
	}
	return false
}

type stateMachine struct {
	v        atomic.Int32
	onChange func(ShutdownState)
}

func (m *stateMachine) load() ShutdownState {
	return ShutdownState(m.v.Load())
}

// advance moves to next from whatever the current state is, provided the
// edge is permitted.
func (m *stateMachine) advance(next ShutdownState) error {
	for {
		cur := m.load()
		if !canTransition(cur, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
		}
		if m.v.CompareAndSwap(int32(cur), int32(next)) {
			if m.onChange != nil {
				m.onChange(next)
			}
			return nil
		}
	}
}
