package session

import "fmt"

// State is the orchestrator lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name for JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateIdle, StateStarting, StateRunning, StateStopping} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", text)
}

// Phase names the step of a session lifecycle an error happened in.
type Phase string

const (
	PhaseDelay     Phase = "delay"
	PhaseCreate    Phase = "create"
	PhaseConfigure Phase = "configure"
	PhaseValidate  Phase = "validate"
	PhaseStart     Phase = "start"
	PhaseStop      Phase = "stop"
	PhaseDispose   Phase = "dispose"
	PhaseAction    Phase = "action"
)
