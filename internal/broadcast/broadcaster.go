// Package broadcast turns setting changes of running module instances into
// a stream of updates for observers.
package broadcast

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kingrea/focus/internal/eventbridge"
	"github.com/kingrea/focus/internal/metrics"
	"github.com/kingrea/focus/internal/module"
	"github.com/kingrea/focus/internal/session"
	"github.com/kingrea/focus/sdk"
)

// DefaultDebounce is the window choice-list bursts are coalesced in.
const DefaultDebounce = 50 * time.Millisecond

// Property names the observable part of a setting that changed.
type Property string

const (
	PropertyValue    Property = "value"
	PropertyLabel    Property = "label"
	PropertyVisible  Property = "visible"
	PropertyReadOnly Property = "read_only"
	PropertyChoices  Property = "choices"
)

// SettingUpdate is one change of one property of one setting.
type SettingUpdate struct {
	InstanceID string    `json:"instance_id"`
	Key        string    `json:"key"`
	Property   Property  `json:"property"`
	Value      sdk.Value `json:"value"`
	At         time.Time `json:"at"`
}

type settingRef struct {
	instanceID string
	key        string
}

type pendingChoices struct {
	timer *time.Timer
	value []string
}

// Option customizes a Broadcaster.
type Option func(*Broadcaster)

// WithDebounce overrides the choice-list coalescing window. Zero disables
// coalescing; duplicates are still suppressed.
func WithDebounce(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d >= 0 {
			b.debounce = d
		}
	}
}

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Broadcaster) {
		b.log = logger
	}
}

// WithClock replaces time.Now for update timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) {
		if now != nil {
			b.now = now
		}
	}
}

// Broadcaster subscribes to every setting of the running session and routes
// each emission to subscribers keyed by instance id. It implements
// session.Publisher.
type Broadcaster struct {
	router   *eventbridge.Router[SettingUpdate]
	debounce time.Duration
	buffer   int
	log      zerolog.Logger
	now      func() time.Time

	mu          sync.Mutex
	generation  uint64
	sessionID   string
	cancels     []func()
	lastChoices map[settingRef][]string
	pending     map[settingRef]*pendingChoices
}

var _ session.Publisher = (*Broadcaster)(nil)

// New builds an idle broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		debounce:    DefaultDebounce,
		buffer:      64,
		log:         zerolog.Nop(),
		now:         time.Now,
		lastChoices: map[settingRef][]string{},
		pending:     map[settingRef]*pendingChoices{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.log = b.log.With().Str("component", "broadcast").Logger()
	b.router = eventbridge.NewRouter[SettingUpdate]("settings",
		eventbridge.RouterWithSubscriberCapacity(b.buffer),
		eventbridge.RouterWithLogger(b.log))
	return b
}

// Subscribe returns live updates for instanceID, or for every instance
// when instanceID is empty.
func (b *Broadcaster) Subscribe(instanceID string) eventbridge.Subscription[SettingUpdate] {
	return b.router.Subscribe(instanceID)
}

// Subscribers reports how many subscriptions are live.
func (b *Broadcaster) Subscribers() int { return b.router.Subscribers() }

// Publish attaches to a started session and detaches from a stopped one.
func (b *Broadcaster) Publish(_ context.Context, event session.Event) {
	switch event.Type {
	case session.EventStarted:
		b.detach()
		if event.Session != nil {
			b.attach(event.Session)
		}
	case session.EventStopped:
		b.detach()
	}
}

// Close detaches and ends every subscription.
func (b *Broadcaster) Close() {
	b.detach()
	b.router.Close()
}

func (b *Broadcaster) attach(s *session.ActiveSession) {
	b.mu.Lock()
	b.generation++
	gen := b.generation
	b.sessionID = s.ID
	b.mu.Unlock()

	var cancels []func()
	settings := 0
	for _, inst := range s.Instances {
		for _, setting := range inst.Settings {
			cancels = append(cancels, b.watch(gen, inst, setting)...)
			settings++
		}
	}

	b.mu.Lock()
	if b.generation != gen {
		b.mu.Unlock()
		for _, cancel := range cancels {
			cancel()
		}
		return
	}
	b.cancels = cancels
	b.mu.Unlock()
	b.log.Debug().Str("session_id", s.ID).Int("settings", settings).Msg("watching settings")
}

func (b *Broadcaster) watch(gen uint64, inst *module.Instance, setting *sdk.Setting) []func() {
	ref := settingRef{instanceID: inst.ID, key: setting.Key}
	b.mu.Lock()
	b.lastChoices[ref] = slices.Clone(setting.Choices.Get())
	b.mu.Unlock()

	return []func(){
		setting.Value.Subscribe(func(v sdk.Value) {
			b.emit(gen, ref, PropertyValue, v)
		}),
		setting.Label.Subscribe(func(label string) {
			b.emit(gen, ref, PropertyLabel, sdk.StringValue(label))
		}),
		setting.Visible.Subscribe(func(visible bool) {
			b.emit(gen, ref, PropertyVisible, sdk.BoolValue(visible))
		}),
		setting.ReadOnly.Subscribe(func(readOnly bool) {
			b.emit(gen, ref, PropertyReadOnly, sdk.BoolValue(readOnly))
		}),
		setting.Choices.Subscribe(func(choices []string) {
			b.choices(gen, ref, choices)
		}),
	}
}

func (b *Broadcaster) detach() {
	b.mu.Lock()
	b.generation++
	cancels := b.cancels
	b.cancels = nil
	for ref, p := range b.pending {
		p.timer.Stop()
		delete(b.pending, ref)
	}
	clear(b.lastChoices)
	sessionID := b.sessionID
	b.sessionID = ""
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if sessionID != "" {
		b.log.Debug().Str("session_id", sessionID).Msg("stopped watching settings")
	}
}

func (b *Broadcaster) current(gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation == gen
}

func (b *Broadcaster) emit(gen uint64, ref settingRef, property Property, value sdk.Value) {
	if !b.current(gen) {
		return
	}
	b.router.Route(ref.instanceID, SettingUpdate{
		InstanceID: ref.instanceID,
		Key:        ref.key,
		Property:   property,
		Value:      value,
		At:         b.now(),
	})
	metrics.RecordBroadcast(string(property))
}

// choices coalesces a burst of choice-list emissions and forwards the last
// one unless it equals what was broadcast before.
func (b *Broadcaster) choices(gen uint64, ref settingRef, list []string) {
	list = slices.Clone(list)
	if b.debounce <= 0 {
		b.flushChoices(gen, ref, list)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != gen {
		return
	}
	if p, ok := b.pending[ref]; ok {
		p.value = list
		return
	}
	p := &pendingChoices{value: list}
	p.timer = time.AfterFunc(b.debounce, func() {
		b.mu.Lock()
		if b.generation != gen || b.pending[ref] != p {
			b.mu.Unlock()
			return
		}
		delete(b.pending, ref)
		value := p.value
		b.mu.Unlock()
		b.flushChoices(gen, ref, value)
	})
	b.pending[ref] = p
}

func (b *Broadcaster) flushChoices(gen uint64, ref settingRef, list []string) {
	b.mu.Lock()
	if b.generation != gen {
		b.mu.Unlock()
		return
	}
	if last, ok := b.lastChoices[ref]; ok && slices.Equal(last, list) {
		b.mu.Unlock()
		metrics.RecordSuppressed()
		return
	}
	b.lastChoices[ref] = list
	b.mu.Unlock()
	b.emit(gen, ref, PropertyChoices, sdk.ChoicesValue(list))
}
