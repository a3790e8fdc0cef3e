package module

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/focus/internal/metrics"
	"github.com/kingrea/focus/sdk"
)

const defaultDisposeLimit = 4

// Option customizes registry construction.
type Option func(*Registry)

// WithCapabilities installs the scope factories.
func WithCapabilities(caps Capabilities) Option {
	return func(r *Registry) {
		r.caps = caps
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.log = logger
	}
}

// WithDisposeLimit bounds how many scopes Dispose closes in parallel.
func WithDisposeLimit(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.disposeLimit = n
		}
	}
}

// Registry maps module ids to definitions and creates isolated instances.
type Registry struct {
	catalog      Catalog
	roots        []string
	caps         Capabilities
	log          zerolog.Logger
	disposeLimit int

	initMu   sync.Mutex
	mu       sync.RWMutex
	defs     map[string]Definition
	order    []string
	problems []error
	ready    bool

	scopesMu sync.Mutex
	scopes   map[*Scope]struct{}
}

// NewRegistry returns an empty registry backed by catalog.
func NewRegistry(catalog Catalog, roots []string, opts ...Option) *Registry {
	r := &Registry{
		catalog:      catalog,
		roots:        append([]string(nil), roots...),
		log:          zerolog.Nop(),
		disposeLimit: defaultDisposeLimit,
		defs:         map[string]Definition{},
		scopes:       map[*Scope]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Initialize populates the catalog once. Later calls are no-ops.
func (r *Registry) Initialize(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	r.mu.RLock()
	ready := r.ready
	r.mu.RUnlock()
	if ready {
		return nil
	}
	return r.discover(ctx)
}

// Refresh re-runs discovery. It is refused while instances are alive so a
// running session never sees its definitions change underneath it.
func (r *Registry) Refresh(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()
	if n := r.Outstanding(); n > 0 {
		return fmt.Errorf("module: refresh: %w (%d)", ErrInstancesOutstanding, n)
	}
	return r.discover(ctx)
}

func (r *Registry) discover(ctx context.Context) error {
	if r.catalog == nil {
		return fmt.Errorf("module: catalog is required")
	}
	found, problems := r.catalog.Discover(ctx, r.roots)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("module: discovery: %w", err)
	}
	defs := make(map[string]Definition, len(found))
	order := make([]string, 0, len(found))
	for _, def := range found {
		if existing, ok := defs[def.ID]; ok {
			err := &DiscoveryError{Path: def.ManifestPath, Err: fmt.Errorf("%w: %s already provided by %s", ErrDuplicateModule, def.ID, existing.ManifestPath)}
			r.log.Warn().Err(err).Msg("skipping duplicate module")
			problems = append(problems, err)
			continue
		}
		defs[def.ID] = def
		order = append(order, def.ID)
	}
	r.mu.Lock()
	r.defs = defs
	r.order = order
	r.problems = problems
	r.ready = true
	r.mu.Unlock()
	metrics.SetModulesDiscovered(len(order))
	r.log.Info().Int("modules", len(order)).Int("problems", len(problems)).Msg("module catalog ready")
	return nil
}

// Definitions returns every definition in discovery order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		defs = append(defs, r.defs[id])
	}
	return defs
}

// Definition looks up one module by id.
func (r *Registry) Definition(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

// IDs returns a sorted list of module identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

// Problems returns the non-fatal errors reported by the last discovery.
func (r *Registry) Problems() []error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]error(nil), r.problems...)
}

// Outstanding reports how many instance scopes are still open.
func (r *Registry) Outstanding() int {
	r.scopesMu.Lock()
	defer r.scopesMu.Unlock()
	return len(r.scopes)
}

// CreateInstance loads a fresh unit for moduleID and constructs an
// initialized instance in its own scope. An empty instanceID gets a new
// uuid. On any failure the scope is closed before returning.
func (r *Registry) CreateInstance(ctx context.Context, moduleID, instanceID string) (*Instance, error) {
	def, ok := r.Definition(moduleID)
	if !ok {
		return nil, fmt.Errorf("module: %w: %s", ErrUnknownModule, moduleID)
	}
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	scope := r.openScope(def, instanceID)
	inst, err := r.populate(ctx, scope)
	if err != nil {
		if closeErr := scope.Close(); closeErr != nil {
			r.log.Warn().Err(closeErr).Str("instance_id", instanceID).Msg("dispose after failed create")
		}
		return nil, err
	}
	return inst, nil
}

func (r *Registry) populate(ctx context.Context, scope *Scope) (*Instance, error) {
	def := scope.Definition
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unit, err := r.catalog.Open(ctx, def)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return nil, err
		}
		return nil, &LoadError{ModuleID: def.ID, Path: def.Assembly, Err: err}
	}
	scope.attach(unit, nil)
	mod, err := construct(unit)
	if err != nil {
		return nil, &InstantiationError{ModuleID: def.ID, InstanceID: scope.InstanceID, Err: err}
	}
	scope.attach(nil, mod)
	if err := initModule(mod, scope.Env); err != nil {
		return nil, &InstantiationError{ModuleID: def.ID, InstanceID: scope.InstanceID, Err: err}
	}
	settings := mod.Settings()
	if err := sdk.CheckSettings(settings); err != nil {
		return nil, &InstantiationError{ModuleID: def.ID, InstanceID: scope.InstanceID, Err: err}
	}
	return &Instance{
		ID:         scope.InstanceID,
		Definition: def,
		Module:     mod,
		Settings:   settings,
		scope:      scope,
	}, nil
}

func construct(unit Unit) (mod sdk.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during construction: %v", r)
		}
	}()
	mod, err = unit.New()
	if err == nil && mod == nil {
		err = fmt.Errorf("unit returned a nil module")
	}
	return mod, err
}

func initModule(mod sdk.Module, env sdk.Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during init: %v", r)
		}
	}()
	return mod.Init(env)
}

func (r *Registry) openScope(def Definition, instanceID string) *Scope {
	scope := &Scope{
		Definition: def,
		InstanceID: instanceID,
		Env:        r.caps.env(def, instanceID),
	}
	scope.release = r.releaseScope
	r.scopesMu.Lock()
	r.scopes[scope] = struct{}{}
	r.scopesMu.Unlock()
	metrics.InstanceOpened()
	return scope
}

func (r *Registry) releaseScope(scope *Scope) {
	r.scopesMu.Lock()
	_, ok := r.scopes[scope]
	delete(r.scopes, scope)
	r.scopesMu.Unlock()
	if ok {
		metrics.InstanceClosed()
	}
}

// Dispose closes every outstanding scope and forces reclamation of the
// released execution units. Disposal failures are joined and returned.
func (r *Registry) Dispose() error {
	r.scopesMu.Lock()
	scopes := make([]*Scope, 0, len(r.scopes))
	for scope := range r.scopes {
		scopes = append(scopes, scope)
	}
	r.scopesMu.Unlock()

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(r.disposeLimit)
	for _, scope := range scopes {
		g.Go(func() error {
			if err := scope.Close(); err != nil {
				r.log.Warn().Err(err).Str("instance_id", scope.InstanceID).Msg("dispose failed")
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	runtime.GC()
	return errors.Join(errs...)
}
