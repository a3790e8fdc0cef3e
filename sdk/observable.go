package sdk

import (
	"sort"
	"sync"
)

// Observable holds a value and notifies subscribers whenever it changes.
// Subscribe does not replay the current value. Subscribers are invoked
// synchronously, in subscription order, and must not call Set on the same
// observable.
type Observable[T any] struct {
	emitMu sync.Mutex
	mu     sync.Mutex
	value  T
	equal  func(a, b T) bool
	subs   map[uint64]func(T)
	nextID uint64
}

// NewObservable seeds an observable. A nil equal func treats every Set as a
// change.
func NewObservable[T any](initial T, equal func(a, b T) bool) *Observable[T] {
	return &Observable[T]{value: initial, equal: equal, subs: map[uint64]func(T){}}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set stores v and notifies subscribers. It reports whether the value changed.
func (o *Observable[T]) Set(v T) bool {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	if o.equal != nil && o.equal(o.value, v) {
		o.mu.Unlock()
		return false
	}
	o.value = v
	subs := o.snapshot()
	o.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
	return true
}

// Emit notifies subscribers with the current value without changing it.
func (o *Observable[T]) Emit() {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.mu.Lock()
	v := o.value
	subs := o.snapshot()
	o.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
}

// Subscribe registers fn and returns a func that removes it. The returned
// func is safe to call more than once.
func (o *Observable[T]) Subscribe(fn func(T)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Subscribers reports how many subscribers are registered.
func (o *Observable[T]) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

func (o *Observable[T]) snapshot() []func(T) {
	if len(o.subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(T), len(ids))
	for i, id := range ids {
		out[i] = o.subs[id]
	}
	return out
}
