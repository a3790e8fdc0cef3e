package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kingrea/focus/internal/broadcast"
	"github.com/kingrea/focus/internal/config"
	"github.com/kingrea/focus/internal/logbook"
	"github.com/kingrea/focus/internal/logging"
	"github.com/kingrea/focus/internal/module"
	"github.com/kingrea/focus/internal/preset"
	"github.com/kingrea/focus/internal/secrets"
	"github.com/kingrea/focus/internal/session"
	"github.com/kingrea/focus/plugins"
	"github.com/kingrea/focus/sdk"
)

// RuntimeOption customizes Open.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	catalog    module.Catalog
	backend    secrets.Backend
	publishers []session.Publisher
}

// WithCatalog replaces the on-disk plugin catalog.
func WithCatalog(catalog module.Catalog) RuntimeOption {
	return func(o *runtimeOptions) {
		o.catalog = catalog
	}
}

// WithSecretBackend replaces the keychain-or-memory default.
func WithSecretBackend(backend secrets.Backend) RuntimeOption {
	return func(o *runtimeOptions) {
		o.backend = backend
	}
}

// WithPublishers adds session lifecycle receivers.
func WithPublishers(publishers ...session.Publisher) RuntimeOption {
	return func(o *runtimeOptions) {
		o.publishers = append(o.publishers, publishers...)
	}
}

// Open assembles the runtime described by cfg and runs module discovery.
func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts ...RuntimeOption) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("service: config is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	var o runtimeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.catalog == nil {
		o.catalog = plugins.NewCatalog(plugins.WithLogger(logger.Component("catalog")))
	}
	if o.backend == nil {
		o.backend = secrets.Default()
	}
	secretsLog := logger.Component("secrets")
	secretsLog.Debug().Str("backend", o.backend.Name()).Msg("secret backend selected")

	caps := module.Capabilities{
		Logger: func(def module.Definition, instanceID string) zerolog.Logger {
			return logger.Module(def.ID, def.Name, instanceID)
		},
		Secrets: func(moduleID string) sdk.SecretStore {
			return secrets.Scoped(o.backend, moduleID)
		},
	}
	registry := module.NewRegistry(o.catalog, cfg.SearchRoots(),
		module.WithCapabilities(caps),
		module.WithLogger(logger.Component("registry")))
	if err := registry.Initialize(ctx); err != nil {
		return nil, err
	}

	project := cfg.Project
	broadcaster := broadcast.New(
		broadcast.WithDebounce(project.Broadcast.Debounce),
		broadcast.WithBuffer(project.Broadcast.Buffer),
		broadcast.WithLogger(logger.Zerolog()))
	lifecycle := broadcast.NewLifecycleHub(project.Broadcast.Buffer, logger.Zerolog())

	history, err := logbook.New(filepath.Join(cfg.StateDir(), "history.log"))
	if err != nil {
		return nil, fmt.Errorf("service: open history: %w", err)
	}
	publishers := append([]session.Publisher{broadcaster, lifecycle, history}, o.publishers...)
	orchestrator := session.New(registry,
		session.WithTimeouts(project.Timeouts.Validate, project.Timeouts.Start, project.Timeouts.Stop),
		session.WithLogger(logger.Zerolog()),
		session.WithPublisher(publishers...))

	return New(Deps{
		Registry:     registry,
		Orchestrator: orchestrator,
		Broadcaster:  broadcaster,
		Lifecycle:    lifecycle,
		Presets:      preset.NewStore(cfg.PresetsDir()),
		Logger:       logger.Zerolog(),
	})
}
