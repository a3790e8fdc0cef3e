package module

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kingrea/focus/sdk"
)

// BuiltinPrefix marks assemblies compiled into the host binary.
const BuiltinPrefix = "builtin:"

// Definition describes one discovered module. It is immutable after
// discovery.
type Definition struct {
	ID          string
	Name        string
	Description string
	Category    string
	Platforms   []sdk.Platform
	// Assembly is the implementation path, or builtin:<name>.
	Assembly string
	// Implementation is the resolved concrete type name.
	Implementation string
	ManifestPath   string
	// Root is the index of the search root the manifest was found under.
	Root int
}

// Validate ensures the definition is well-formed.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("module: id is required")
	}
	if _, err := uuid.Parse(d.ID); err != nil {
		return fmt.Errorf("module: id %q is not a uuid: %w", d.ID, err)
	}
	if d.Name == "" {
		return fmt.Errorf("module: name is required for %s", d.ID)
	}
	if d.Assembly == "" {
		return fmt.Errorf("module: assembly is required for %s", d.ID)
	}
	if len(d.Platforms) == 0 {
		return fmt.Errorf("module: at least one platform is required for %s", d.ID)
	}
	return nil
}

// Supports reports whether the module declares platform p.
func (d Definition) Supports(p sdk.Platform) bool {
	return slices.Contains(d.Platforms, p)
}

// Builtin returns the compiled-in name when the assembly is builtin:<name>.
func (d Definition) Builtin() (string, bool) {
	if !strings.HasPrefix(d.Assembly, BuiltinPrefix) {
		return "", false
	}
	return strings.TrimPrefix(d.Assembly, BuiltinPrefix), true
}

// Label is the human-facing identifier used in logs and errors.
func (d Definition) Label() string {
	if d.Name == "" {
		return d.ID
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.ID)
}

// Unit is an isolated execution unit holding one module implementation.
// Closing it releases everything the implementation allocated without
// affecting the host or other units.
type Unit interface {
	// New constructs the concrete module type.
	New() (sdk.Module, error)
	Close() error
}

// Catalog discovers module definitions and opens execution units for them.
type Catalog interface {
	// Discover scans roots in priority order. Problems with individual
	// modules are returned alongside the accepted definitions.
	Discover(ctx context.Context, roots []string) ([]Definition, []error)
	// Open loads a fresh unit for def. Every call returns a new unit.
	Open(ctx context.Context, def Definition) (Unit, error)
}
