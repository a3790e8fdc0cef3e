package module

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kingrea/focus/sdk"
)

// LoggerFactory builds the logger handed to one module instance.
type LoggerFactory func(def Definition, instanceID string) zerolog.Logger

// SecretsFactory builds the secret store restricted to one module.
type SecretsFactory func(moduleID string) sdk.SecretStore

// Capabilities are the named factories a scope is assembled from.
type Capabilities struct {
	Logger  LoggerFactory
	Secrets SecretsFactory
}

func (c Capabilities) env(def Definition, instanceID string) sdk.Env {
	env := sdk.Env{ModuleID: def.ID, InstanceID: instanceID, Log: zerolog.Nop()}
	if c.Logger != nil {
		env.Log = c.Logger(def, instanceID)
	}
	if c.Secrets != nil {
		env.Secrets = c.Secrets(def.ID)
	}
	return env
}

// Scope owns everything created for one instance: its environment, its
// execution unit and the module value. Closing the scope releases all of it.
type Scope struct {
	Definition Definition
	InstanceID string
	Env        sdk.Env

	mu      sync.Mutex
	unit    Unit
	module  sdk.Module
	once    sync.Once
	err     error
	release func(*Scope)
}

// Close disposes the module (when it implements io.Closer) and the unit.
// It is idempotent; later calls return the first result.
func (s *Scope) Close() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		s.mu.Lock()
		mod, unit := s.module, s.unit
		s.module, s.unit = nil, nil
		s.mu.Unlock()

		var errs []error
		if closer, ok := mod.(io.Closer); ok {
			errs = append(errs, closeRecover(closer))
		}
		if unit != nil {
			errs = append(errs, closeRecover(unit))
		}
		if s.release != nil {
			s.release(s)
		}
		if err := errors.Join(errs...); err != nil {
			s.err = &DisposalError{ModuleID: s.Definition.ID, InstanceID: s.InstanceID, Err: err}
		}
	})
	return s.err
}

func (s *Scope) attach(unit Unit, mod sdk.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unit != nil {
		s.unit = unit
	}
	if mod != nil {
		s.module = mod
	}
}

func closeRecover(c io.Closer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during close: %v", r)
		}
	}()
	return c.Close()
}

// Instance is a live module value created for one configured module.
type Instance struct {
	ID         string
	Definition Definition
	Module     sdk.Module
	// Settings is the module's setting list captured at creation.
	Settings []*sdk.Setting

	scope *Scope
}

// Scope returns the owning scope.
func (i *Instance) Scope() *Scope { return i.scope }

// Env returns the instance's environment.
func (i *Instance) Env() sdk.Env { return i.scope.Env }

// Close disposes the instance's scope.
func (i *Instance) Close() error { return i.scope.Close() }

// Setting looks up a setting by key.
func (i *Instance) Setting(key string) (*sdk.Setting, bool) {
	return sdk.FindSetting(i.Settings, key)
}
