package engine

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]ShutdownState]bool{
		{StateRunning, StatePausing}:  true,
		{StateRunning, StateStopping}: true,
		{StatePausing, StatePaused}:   true,
		{StatePaused, StateRunning}:   true,
		{StatePaused, StateStopping}:  true,
		{StateStopping, StateStopped}: true,
	}
	all := []ShutdownState{StateRunning, StatePausing, StatePaused, StateStopping, StateStopped}
	for _, from := range all {
		for _, to := range all {
			if got := canTransition(from, to); got != allowed[[2]ShutdownState{from, to}] {
				t.Errorf("canTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestStateMachine_Advance(t *testing.T) {
	var seen []ShutdownState
	m := stateMachine{onChange: func(s ShutdownState) { seen = append(seen, s) }}

	for _, next := range []ShutdownState{StatePausing, StatePaused, StateRunning, StateStopping, StateStopped} {
		if err := m.advance(next); err != nil {
			t.Fatalf("advance(%s): %v", next, err)
		}
	}
	if err := m.advance(StateRunning); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("advance from Stopped = %v, want ErrInvalidTransition", err)
	}
	if len(seen) != 5 || m.load() != StateStopped {
		t.Errorf("seen %v, state %s", seen, m.load())
	}
}

func TestShutdownState_JSON(t *testing.T) {
	b, err := json.Marshal(StatePaused)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"Paused"` {
		t.Errorf("marshal = %s", b)
	}
	var s ShutdownState
	if err := json.Unmarshal([]byte(`"Stopping"`), &s); err != nil || s != StateStopping {
		t.Errorf("unmarshal = %v, %v", s, err)
	}
	if err := json.Unmarshal([]byte(`"Sleeping"`), &s); err == nil {
		t.Error("unknown state accepted")
	}
}
