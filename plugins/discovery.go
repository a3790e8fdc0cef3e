package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/focus/internal/metrics"
	"github.com/kingrea/focus/internal/module"
	"github.com/kingrea/focus/sdk"
)

const defaultLoadLimit = 4

// ErrUnknownBuiltin is returned for builtin:<name> assemblies nobody registered.
var ErrUnknownBuiltin = errors.New("builtin module not registered")

// Option customizes catalog construction.
type Option func(*Catalog)

// WithLogger overrides the default no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Catalog) {
		c.log = logger
	}
}

// WithPlatform overrides the platform manifests are filtered against.
func WithPlatform(p sdk.Platform) Option {
	return func(c *Catalog) {
		if p != "" {
			c.platform = p
		}
	}
}

// WithLoadLimit bounds how many assemblies load in parallel.
func WithLoadLimit(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.limit = n
		}
	}
}

// Catalog discovers plugin directories on disk and loads their
// implementations into isolated units. It implements module.Catalog.
type Catalog struct {
	log      zerolog.Logger
	platform sdk.Platform
	limit    int
}

var _ module.Catalog = (*Catalog)(nil)

// NewCatalog returns a catalog for the current platform.
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{
		log:      zerolog.Nop(),
		platform: sdk.CurrentPlatform(),
		limit:    defaultLoadLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type candidate struct {
	root int
	path string
}

// Discover scans every root in priority order. Each immediate subdirectory
// holding a manifest is one plugin. Problems with individual plugins are
// logged and returned; the scan always continues.
func (c *Catalog) Discover(ctx context.Context, roots []string) ([]module.Definition, []error) {
	var problems []error
	report := func(kind string, err error) {
		metrics.RecordDiscoveryProblem(kind)
		c.log.Warn().Err(err).Str("kind", kind).Msg("skipping module")
		problems = append(problems, err)
	}

	var defs []module.Definition
	seen := map[string]string{}
	for _, cand := range c.scan(roots, report) {
		manifest, err := LoadManifest(cand.path)
		if err != nil {
			report("manifest", &module.DiscoveryError{Path: cand.path, Err: err})
			continue
		}
		def := manifest.Definition(cand.path, cand.root)
		if !def.Supports(c.platform) {
			c.log.Debug().Str("module_id", def.ID).Str("platform", string(c.platform)).Msg("module does not target this platform")
			continue
		}
		if err := c.checkAssembly(def); err != nil {
			report("assembly", &module.DiscoveryError{Path: cand.path, Err: err})
			continue
		}
		if first, dup := seen[def.ID]; dup {
			report("duplicate", &module.DiscoveryError{Path: cand.path, Err: fmt.Errorf("%w: %s already provided by %s", module.ErrDuplicateModule, def.ID, first)})
			continue
		}
		seen[def.ID] = cand.path
		defs = append(defs, def)
	}

	loaded := make([]module.Definition, len(defs))
	loadErrs := make([]error, len(defs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for idx, def := range defs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resolved, err := c.resolve(def)
			if err != nil {
				loadErrs[idx] = err
				return nil
			}
			loaded[idx] = resolved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		problems = append(problems, fmt.Errorf("plugin: discovery interrupted: %w", err))
		return nil, problems
	}

	accepted := make([]module.Definition, 0, len(defs))
	for idx := range defs {
		if loadErrs[idx] != nil {
			report("load", loadErrs[idx])
			continue
		}
		accepted = append(accepted, loaded[idx])
	}
	c.log.Debug().Int("modules", len(accepted)).Int("roots", len(roots)).Msg("discovery finished")
	return accepted, problems
}

// scan lists manifest paths, ordered by root priority then path.
func (c *Catalog) scan(roots []string, report func(string, error)) []candidate {
	var out []candidate
	for idx, root := range roots {
		trimmed := strings.TrimSpace(root)
		if trimmed == "" {
			continue
		}
		entries, err := os.ReadDir(trimmed)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				c.log.Debug().Str("root", trimmed).Msg("search root missing")
				continue
			}
			report("root", &module.DiscoveryError{Path: trimmed, Err: err})
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			if path := findManifest(filepath.Join(trimmed, entry.Name())); path != "" {
				out = append(out, candidate{root: idx, path: path})
			}
		}
	}
	return out
}

func (c *Catalog) checkAssembly(def module.Definition) error {
	if name, ok := def.Builtin(); ok {
		if _, registered := lookupBuiltin(name); !registered {
			return fmt.Errorf("%w: %s", ErrUnknownBuiltin, name)
		}
		return nil
	}
	info, err := os.Stat(def.Assembly)
	if err != nil {
		return fmt.Errorf("implementation %s: %w", def.Assembly, err)
	}
	if info.IsDir() {
		return fmt.Errorf("implementation %s is a directory", def.Assembly)
	}
	return nil
}

// resolve locates the implementation type and proves it loads by opening
// and discarding one unit.
func (c *Catalog) resolve(def module.Definition) (module.Definition, error) {
	if name, ok := def.Builtin(); ok {
		factory, _ := lookupBuiltin(name)
		mod := factory()
		if mod == nil {
			return def, &module.LoadError{ModuleID: def.ID, Path: def.Assembly, Err: fmt.Errorf("builtin factory returned nil")}
		}
		t := reflect.TypeOf(mod)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		def.Implementation = t.Name()
		return def, nil
	}
	typeName, err := ResolveImplementation(def.Assembly)
	if err != nil {
		return def, &module.LoadError{ModuleID: def.ID, Path: def.Assembly, Err: err}
	}
	def.Implementation = typeName
	unit, err := openGoUnit(def.Assembly, typeName)
	if err != nil {
		return def, &module.LoadError{ModuleID: def.ID, Path: def.Assembly, Err: err}
	}
	defer unit.Close()
	if _, err := unit.New(); err != nil {
		return def, &module.LoadError{ModuleID: def.ID, Path: def.Assembly, Err: err}
	}
	return def, nil
}

// Open loads a fresh unit for def.
func (c *Catalog) Open(ctx context.Context, def module.Definition) (module.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name, ok := def.Builtin(); ok {
		factory, registered := lookupBuiltin(name)
		if !registered {
			return nil, &module.LoadError{ModuleID: def.ID, Path: def.Assembly, Err: fmt.Errorf("%w: %s", ErrUnknownBuiltin, name)}
		}
		return builtinUnit{factory: factory}, nil
	}
	typeName := def.Implementation
	if typeName == "" {
		resolved, err := ResolveImplementation(def.Assembly)
		if err != nil {
			return nil, &module.LoadError{ModuleID: def.ID, Path: def.Assembly, Err: err}
		}
		typeName = resolved
	}
	unit, err := openGoUnit(def.Assembly, typeName)
	if err != nil {
		return nil, &module.LoadError{ModuleID: def.ID, Path: def.Assembly, Err: err}
	}
	return unit, nil
}
