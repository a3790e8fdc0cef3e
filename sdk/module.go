// Package sdk is the contract between the focus runtime and its modules.
//
// A module is a Go type, compiled in or interpreted from source, that
// exposes reactive settings and reacts to session start and end. Interpreted
// modules import "github.com/kingrea/focus/sdk" and declare exactly one
// exported type implementing Module.
package sdk

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
)

// Platform names an operating system a module supports.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
)

// CurrentPlatform maps runtime.GOOS onto a Platform.
func CurrentPlatform() Platform {
	return PlatformFor(runtime.GOOS)
}

// PlatformFor maps a GOOS value onto a Platform.
func PlatformFor(goos string) Platform {
	switch goos {
	case "darwin", "ios":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	default:
		return PlatformLinux
	}
}

// SecretStore gives a module access to its own secrets only.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Env carries the collaborators scoped to one module instance.
type Env struct {
	ModuleID   string
	InstanceID string
	Log        zerolog.Logger
	Secrets    SecretStore
}

// Action is a user-triggerable operation exposed by a module.
type Action struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Module is implemented by every capability plugin.
type Module interface {
	// Init receives the instance-scoped environment before any other call.
	Init(env Env) error
	// Settings returns the module's settings. The slice must be stable for
	// the lifetime of the instance.
	Settings() []*Setting
	Actions() []Action
	// Validate checks the current settings. Return a *ValidationError or
	// ValidationErrors for field-level detail.
	Validate(ctx context.Context) error
	// Start is the session-start hook.
	Start(ctx context.Context) error
	// Stop is the session-end hook.
	Stop(ctx context.Context) error
}

// Invoker is implemented by modules whose actions can be triggered.
type Invoker interface {
	Invoke(ctx context.Context, action string) error
}
