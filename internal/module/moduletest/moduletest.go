// Package moduletest provides in-memory modules and catalogs for tests.
package moduletest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kingrea/focus/internal/module"
	"github.com/kingrea/focus/sdk"
)

// Journal records lifecycle calls across modules in the order they happen.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *Journal) Add(entry string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

// Entries returns a copy of the recorded calls.
func (j *Journal) Entries() []string {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// Module is a configurable sdk.Module. Nil hooks succeed.
type Module struct {
	Name       string
	Journal    *Journal
	Fields     []*sdk.Setting
	Exposed    []sdk.Action
	OnInit     func(env sdk.Env) error
	OnValidate func(ctx context.Context) error
	OnStart    func(ctx context.Context) error
	OnStop     func(ctx context.Context) error
	OnInvoke   func(ctx context.Context, action string) error
	OnClose    func() error

	mu     sync.Mutex
	env    sdk.Env
	closed bool
}

func (m *Module) record(call string) {
	m.Journal.Add(m.Name + ":" + call)
}

func (m *Module) Init(env sdk.Env) error {
	m.mu.Lock()
	m.env = env
	m.mu.Unlock()
	m.record("init")
	if m.OnInit != nil {
		return m.OnInit(env)
	}
	return nil
}

func (m *Module) Settings() []*sdk.Setting { return m.Fields }

func (m *Module) Actions() []sdk.Action { return m.Exposed }

func (m *Module) Validate(ctx context.Context) error {
	m.record("validate")
	if m.OnValidate != nil {
		return m.OnValidate(ctx)
	}
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.record("start")
	if m.OnStart != nil {
		return m.OnStart(ctx)
	}
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	m.record("stop")
	if m.OnStop != nil {
		return m.OnStop(ctx)
	}
	return nil
}

func (m *Module) Invoke(ctx context.Context, action string) error {
	m.record("invoke:" + action)
	if m.OnInvoke != nil {
		return m.OnInvoke(ctx, action)
	}
	return nil
}

// Close marks the module disposed.
func (m *Module) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.record("close")
	if m.OnClose != nil {
		return m.OnClose()
	}
	return nil
}

// Closed reports whether Close ran.
func (m *Module) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Env returns the environment received by Init.
func (m *Module) Env() sdk.Env {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.env
}

// Catalog serves definitions backed by factories instead of files.
type Catalog struct {
	Problems []error

	mu        sync.Mutex
	defs      []module.Definition
	factories map[string]func() sdk.Module
	opened    map[string]int
	live      int
	discovers int
}

func NewCatalog() *Catalog {
	return &Catalog{factories: map[string]func() sdk.Module{}, opened: map[string]int{}}
}

// Add registers a module available on every platform and returns its
// definition.
func (c *Catalog) Add(name string, factory func() sdk.Module) module.Definition {
	def := module.Definition{
		ID:             uuid.NewString(),
		Name:           name,
		Category:       "test",
		Platforms:      []sdk.Platform{sdk.PlatformWindows, sdk.PlatformMacOS, sdk.PlatformLinux},
		Assembly:       module.BuiltinPrefix + name,
		Implementation: name,
		ManifestPath:   name + "/manifest.yaml",
	}
	c.AddDefinition(def, factory)
	return def
}

// AddDefinition registers def as-is.
func (c *Catalog) AddDefinition(def module.Definition, factory func() sdk.Module) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs = append(c.defs, def)
	c.factories[def.ID] = factory
}

func (c *Catalog) Discover(ctx context.Context, roots []string) ([]module.Definition, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discovers++
	return append([]module.Definition(nil), c.defs...), append([]error(nil), c.Problems...)
}

func (c *Catalog) Open(ctx context.Context, def module.Definition) (module.Unit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	factory, ok := c.factories[def.ID]
	if !ok {
		return nil, fmt.Errorf("moduletest: no factory for %s", def.ID)
	}
	c.opened[def.ID]++
	c.live++
	return &unit{catalog: c, factory: factory}, nil
}

// Opened reports how many units were opened for id.
func (c *Catalog) Opened(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened[id]
}

// Live reports how many units are open.
func (c *Catalog) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Discovers reports how many times Discover ran.
func (c *Catalog) Discovers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discovers
}

type unit struct {
	catalog *Catalog
	factory func() sdk.Module
	once    sync.Once
}

func (u *unit) New() (sdk.Module, error) {
	return u.factory(), nil
}

func (u *unit) Close() error {
	u.once.Do(func() {
		u.catalog.mu.Lock()
		u.catalog.live--
		u.catalog.mu.Unlock()
	})
	return nil
}
