package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/kingrea/focus/sdk"
)

var (
	ErrAlreadyRunning  = errors.New("a session is already active")
	ErrNoActiveSession = errors.New("no active session")
	ErrEmptySession    = errors.New("no module could be started")
	ErrTimeout         = errors.New("hook timed out")
	// ErrUnknownInstance is returned when an instance id is not part of the
	// active session.
	ErrUnknownInstance = errors.New("unknown instance")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("orchestrator closed")
)

// AlreadyRunningError is returned by Start when the orchestrator is not idle.
type AlreadyRunningError struct {
	State State
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("session: cannot start while %s", e.State)
}

func (e *AlreadyRunningError) Is(target error) bool { return target == ErrAlreadyRunning }

// NoActiveSessionError is returned when an operation needs a running session.
type NoActiveSessionError struct {
	State State
}

func (e *NoActiveSessionError) Error() string {
	return fmt.Sprintf("session: no active session (state %s)", e.State)
}

func (e *NoActiveSessionError) Is(target error) bool { return target == ErrNoActiveSession }

// EmptySessionError is returned when a preset yields no startable module.
type EmptySessionError struct {
	PresetID string
}

func (e *EmptySessionError) Error() string {
	return fmt.Sprintf("session: preset %s has no module that could be started", e.PresetID)
}

func (e *EmptySessionError) Is(target error) bool { return target == ErrEmptySession }

// TimeoutError reports a hook that did not return within its budget.
type TimeoutError struct {
	Module     string
	InstanceID string
	Phase      Phase
	Budget     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("session: %s hook of %s (%s) exceeded %s", e.Phase, e.Module, e.InstanceID, e.Budget)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// HookError attributes a failed or panicking hook to its module.
type HookError struct {
	Module     string
	InstanceID string
	Phase      Phase
	Err        error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("session: %s hook of %s (%s): %v", e.Phase, e.Module, e.InstanceID, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// StartError aborts a session start. Everything created before the failure
// has been rolled back when it is returned.
type StartError struct {
	PresetID   string
	Module     string
	ModuleID   string
	InstanceID string
	Phase      Phase
	// Field is the offending setting key for validation failures.
	Field string
	// Started counts modules whose start hook had completed.
	Started int
	Cause   error
	// Rollback holds teardown failures hit while undoing the start.
	Rollback error
}

func (e *StartError) Error() string {
	msg := fmt.Sprintf("session: start of preset %s failed at %s of %s (%s)", e.PresetID, e.Phase, e.Module, e.InstanceID)
	if e.Field != "" {
		msg += fmt.Sprintf(" field %s", e.Field)
	}
	return msg + ": " + e.Cause.Error()
}

func (e *StartError) Unwrap() error { return e.Cause }

// Is lets a start that got nothing running match ErrEmptySession.
func (e *StartError) Is(target error) bool {
	return target == ErrEmptySession && e.Started == 0
}

// As fills an *EmptySessionError when nothing was started.
func (e *StartError) As(target any) bool {
	ptr, ok := target.(**EmptySessionError)
	if !ok || e.Started != 0 {
		return false
	}
	*ptr = &EmptySessionError{PresetID: e.PresetID}
	return true
}

func newStartError(presetID string, m *attempt, phase Phase, started int, cause error) *StartError {
	se := &StartError{
		PresetID:   presetID,
		Module:     m.label,
		ModuleID:   m.entry.ModuleID,
		InstanceID: m.entry.InstanceID,
		Phase:      phase,
		Started:    started,
		Cause:      cause,
	}
	var verr *sdk.ValidationError
	if errors.As(cause, &verr) {
		se.Field = verr.Field
	}
	return se
}
