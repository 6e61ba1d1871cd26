package events

import "sync"

// Stats is a point-in-time view of a Dispatcher.
type Stats struct {
	Sources     int
	Subscribers int
}

// Dispatcher maps subject keys to EventSources, creating a source the first
// time a key is subscribed to or published on. Sources are never removed: a
// key that is absent has simply not been seen yet.
//
// Locking is two-level. mu guards the map only; each source has its own
// lock. A source lock is never held while mu is being acquired.
type Dispatcher[K comparable, V any] struct {
	mu      sync.RWMutex
	sources map[K]*EventSource[V]
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher[K comparable, V any]() *Dispatcher[K, V] {
	return &Dispatcher[K, V]{sources: make(map[K]*EventSource[V])}
}

// Subscribe registers a new outlet for key and returns it with the last
// value published for key, if any.
func (d *Dispatcher[K, V]) Subscribe(key K) (*Outlet[V], V, bool) {
	return d.source(key).Subscribe()
}

// Publish delivers v to every subscriber of key and makes it the value
// returned to later subscribers.
func (d *Dispatcher[K, V]) Publish(key K, v V) PublishResult {
	return d.source(key).Publish(v)
}

// LastEvent returns the last value published for key. It does not create a
// source for an unseen key.
func (d *Dispatcher[K, V]) LastEvent(key K) (V, bool) {
	d.mu.RLock()
	src, ok := d.sources[key]
	d.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	return src.LastEvent()
}

// Reap prunes closed outlets across every source and returns how many were
// removed.
func (d *Dispatcher[K, V]) Reap() int {
	removed := 0
	for _, src := range d.snapshot() {
		removed += src.Reap()
	}
	return removed
}

// Stats counts sources and registered outlets.
func (d *Dispatcher[K, V]) Stats() Stats {
	srcs := d.snapshot()
	st := Stats{Sources: len(srcs)}
	for _, src := range srcs {
		st.Subscribers += src.Subscribers()
	}
	return st
}

// source returns the EventSource for key, creating it if needed. The
// double check under the write lock guarantees one source per key when
// first touches race.
func (d *Dispatcher[K, V]) source(key K) *EventSource[V] {
	d.mu.RLock()
	src, ok := d.sources[key]
	d.mu.RUnlock()
	if ok {
		return src
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if src, ok := d.sources[key]; ok {
		return src
	}
	src = NewEventSource[V]()
	d.sources[key] = src
	return src
}

// snapshot copies the current sources so callers can visit them without
// holding mu.
func (d *Dispatcher[K, V]) snapshot() []*EventSource[V] {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*EventSource[V], 0, len(d.sources))
	for _, src := range d.sources {
		out = append(out, src)
	}
	return out
}
