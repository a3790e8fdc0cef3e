// Package preset stores the named, ordered module configurations a session
// is started from.
package preset

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the schema version written by Save.
const CurrentVersion = 2

var (
	// ErrNotFound is returned when no preset has the requested id.
	ErrNotFound = errors.New("preset not found")
	// ErrUnsupportedVersion is returned for documents newer than CurrentVersion.
	ErrUnsupportedVersion = errors.New("unsupported preset version")
	// ErrInvalid wraps every Validate failure.
	ErrInvalid = errors.New("invalid preset")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ConfiguredModule is one entry of a preset: a module, the instance id it
// runs under and its persisted settings.
type ConfiguredModule struct {
	InstanceID  string
	ModuleID    string
	DisplayName string
	StartDelay  time.Duration
	// Settings holds persisted values in the string form accepted by
	// sdk.ParseValue, keyed by setting key.
	Settings map[string]string
}

// Label returns the display name, falling back to the instance id.
func (m ConfiguredModule) Label() string {
	if name := strings.TrimSpace(m.DisplayName); name != "" {
		return name
	}
	return m.InstanceID
}

// Preset is a named, ordered list of configured modules.
type Preset struct {
	ID      string
	Name    string
	Version int
	Modules []ConfiguredModule
}

// Validate enforces a usable id, unique instance ids and well-formed module
// ids. Failures match ErrInvalid.
func (p Preset) Validate() error {
	if err := p.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (p Preset) validate() error {
	if !idPattern.MatchString(p.ID) {
		return fmt.Errorf("preset: invalid id %q", p.ID)
	}
	seen := make(map[string]int, len(p.Modules))
	for idx, entry := range p.Modules {
		instanceID := strings.TrimSpace(entry.InstanceID)
		if instanceID == "" {
			return fmt.Errorf("preset %s: modules[%d]: instance id is required", p.ID, idx)
		}
		if first, dup := seen[instanceID]; dup {
			return fmt.Errorf("preset %s: modules[%d]: instance id %s already used by modules[%d]", p.ID, idx, instanceID, first)
		}
		seen[instanceID] = idx
		if _, err := uuid.Parse(entry.ModuleID); err != nil {
			return fmt.Errorf("preset %s: modules[%d]: invalid module id %q", p.ID, idx, entry.ModuleID)
		}
		if entry.StartDelay < 0 {
			return fmt.Errorf("preset %s: modules[%d]: start delay must not be negative", p.ID, idx)
		}
	}
	return nil
}

// Clone returns a deep copy of p.
func (p Preset) Clone() Preset {
	out := p
	out.Modules = make([]ConfiguredModule, len(p.Modules))
	for idx, entry := range p.Modules {
		if entry.Settings != nil {
			settings := make(map[string]string, len(entry.Settings))
			for k, v := range entry.Settings {
				settings[k] = v
			}
			entry.Settings = settings
		}
		out.Modules[idx] = entry
	}
	return out
}

// Module returns the entry with the given instance id.
func (p Preset) Module(instanceID string) (ConfiguredModule, bool) {
	for _, entry := range p.Modules {
		if entry.InstanceID == instanceID {
			return entry, true
		}
	}
	return ConfiguredModule{}, false
}
