package eventbridge

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kingrea/focus/internal/metrics"
)

const defaultSubscriberCapacity = 64

// Wildcard subscribes to every key.
const Wildcard = ""

// RouterOption customizes Router construction.
type RouterOption func(*routerConfig)

type routerConfig struct {
	channelSize int
	logger      zerolog.Logger
}

// RouterWithLogger injects a logger for drop diagnostics.
func RouterWithLogger(logger zerolog.Logger) RouterOption {
	return func(c *routerConfig) {
		c.logger = logger
	}
}

// RouterWithSubscriberCapacity overrides the buffered channel size per subscriber.
func RouterWithSubscriberCapacity(size int) RouterOption {
	return func(c *routerConfig) {
		if size > 0 {
			c.channelSize = size
		}
	}
}

// Router fans events out to subscribers keyed by an id, plus wildcard
// subscribers that see everything. Delivery never blocks: a subscriber
// whose buffer is full is dropped and its channel closed. Events routed
// before a subscription exists are not replayed.
type Router[E any] struct {
	name        string
	mu          sync.Mutex
	subscribers map[string]map[*subscriber[E]]struct{}
	channelSize int
	log         zerolog.Logger
	closed      bool
}

// Subscription is a live feed of routed events. Events is closed when the
// subscription is cancelled, dropped for being too slow, or the router
// closes.
type Subscription[E any] struct {
	Events <-chan E
	cancel func()
}

// Close terminates the subscription. It is safe to call more than once.
func (s Subscription[E]) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// NewRouter constructs a router. name labels drop metrics and logs.
func NewRouter[E any](name string, opts ...RouterOption) *Router[E] {
	cfg := routerConfig{channelSize: defaultSubscriberCapacity, logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Router[E]{
		name:        name,
		subscribers: map[string]map[*subscriber[E]]struct{}{},
		channelSize: cfg.channelSize,
		log:         cfg.logger.With().Str("component", "router").Str("router", name).Logger(),
	}
}

// Subscribe registers for events routed under key. Wildcard receives all
// events.
func (r *Router[E]) Subscribe(key string) Subscription[E] {
	key = normalizeKey(key)
	sub := &subscriber[E]{ch: make(chan E, r.channelSize)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		sub.close()
		return Subscription[E]{Events: sub.ch}
	}
	if r.subscribers[key] == nil {
		r.subscribers[key] = map[*subscriber[E]]struct{}{}
	}
	r.subscribers[key][sub] = struct{}{}
	return Subscription[E]{
		Events: sub.ch,
		cancel: func() {
			r.removeSubscriber(key, sub)
		},
	}
}

// Route delivers event to the subscribers of key and to wildcard
// subscribers. It reports how many subscribers accepted it.
func (r *Router[E]) Route(key string, event E) int {
	key = normalizeKey(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	delivered := r.deliverLocked(key, event)
	if key != Wildcard {
		delivered += r.deliverLocked(Wildcard, event)
	}
	return delivered
}

func (r *Router[E]) deliverLocked(key string, event E) int {
	delivered := 0
	for sub := range r.subscribers[key] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			delete(r.subscribers[key], sub)
			sub.close()
			metrics.RecordSubscriberDrop(r.name)
			r.log.Warn().Str("key", key).Int("capacity", cap(sub.ch)).Msg("dropping slow subscriber")
		}
	}
	if len(r.subscribers[key]) == 0 {
		delete(r.subscribers, key)
	}
	return delivered
}

// Subscribers reports how many subscriptions are live.
func (r *Router[E]) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, subs := range r.subscribers {
		total += len(subs)
	}
	return total
}

// Close ends every subscription. Later subscriptions start closed.
func (r *Router[E]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for key, subs := range r.subscribers {
		for sub := range subs {
			sub.close()
		}
		delete(r.subscribers, key)
	}
}

func (r *Router[E]) removeSubscriber(key string, sub *subscriber[E]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if subs := r.subscribers[key]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.subscribers, key)
		}
	}
	sub.close()
}

// normalizeKey trims surrounding space. Keys are instance ids, which are
// case-sensitive.
func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// subscriber is only touched with the router lock held.
type subscriber[E any] struct {
	ch     chan E
	closed bool
}

func (s *subscriber[E]) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
