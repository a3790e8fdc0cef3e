package module

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownModule is returned when an id is not in the catalog.
	ErrUnknownModule = errors.New("unknown module")
	// ErrDuplicateModule marks a manifest whose id was already discovered.
	ErrDuplicateModule = errors.New("duplicate module id")
	// ErrInstancesOutstanding is returned by Refresh while instances are alive.
	ErrInstancesOutstanding = errors.New("module instances outstanding")
	// ErrUnsupportedPlatform marks a definition that does not target this OS.
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

// DiscoveryError reports a manifest that could not be accepted.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("module: discovery %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// LoadError reports an implementation that could not be loaded or whose
// module type could not be resolved.
type LoadError struct {
	ModuleID string
	Path     string
	Err      error
}

func (e *LoadError) Error() string {
	if e.ModuleID == "" {
		return fmt.Sprintf("module: load %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("module: load %s from %s: %v", e.ModuleID, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InstantiationError reports a failure constructing or initializing an
// instance after its unit loaded.
type InstantiationError struct {
	ModuleID   string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("module: instantiate %s as %s: %v", e.ModuleID, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// DisposalError reports a failure releasing an instance. It is never fatal.
type DisposalError struct {
	ModuleID   string
	InstanceID string
	Err        error
}

func (e *DisposalError) Error() string {
	return fmt.Sprintf("module: dispose %s (%s): %v", e.InstanceID, e.ModuleID, e.Err)
}

func (e *DisposalError) Unwrap() error { return e.Err }
