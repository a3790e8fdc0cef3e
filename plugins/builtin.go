package plugins

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kingrea/focus/sdk"
)

// BuiltinFactory constructs a compiled-in module.
type BuiltinFactory func() sdk.Module

var builtins = struct {
	mu        sync.RWMutex
	factories map[string]BuiltinFactory
}{factories: map[string]BuiltinFactory{}}

// RegisterBuiltin makes factory available to manifests declaring
// "assembly: builtin:<name>".
func RegisterBuiltin(name string, factory BuiltinFactory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("plugin: builtin name is required")
	}
	if factory == nil {
		return fmt.Errorf("plugin: factory is required for builtin %s", name)
	}
	builtins.mu.Lock()
	defer builtins.mu.Unlock()
	if _, exists := builtins.factories[name]; exists {
		return fmt.Errorf("plugin: builtin %s already registered", name)
	}
	builtins.factories[name] = factory
	return nil
}

// MustRegisterBuiltin panics if registration fails.
func MustRegisterBuiltin(name string, factory BuiltinFactory) {
	if err := RegisterBuiltin(name, factory); err != nil {
		panic(err)
	}
}

func lookupBuiltin(name string) (BuiltinFactory, bool) {
	builtins.mu.RLock()
	defer builtins.mu.RUnlock()
	factory, ok := builtins.factories[name]
	return factory, ok
}

// builtinUnit needs no isolation; the implementation lives in the host.
type builtinUnit struct {
	factory BuiltinFactory
}

func (u builtinUnit) New() (sdk.Module, error) {
	mod := u.factory()
	if mod == nil {
		return nil, fmt.Errorf("plugin: builtin factory returned nil")
	}
	return mod, nil
}

func (builtinUnit) Close() error { return nil }
