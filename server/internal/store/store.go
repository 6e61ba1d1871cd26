package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Entry is a value together with the time it was last written.
type Entry[V any] struct {
	Value     V
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory snapshot store keyed by subject.
// A background goroutine (Run) periodically evicts entries that have not
// been written within the configured TTL.
type Store[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]*Entry[V]
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL. It panics if ttl is not positive.
func New[K comparable, V any](ttl time.Duration) *Store[K, V] {
	if ttl <= 0 {
		panic("store: ttl must be positive")
	}
	return &Store[K, V]{
		data: make(map[K]*Entry[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the freshness window applied to every entry.
func (s *Store[K, V]) TTL() time.Duration { return s.ttl }

// Set stores or replaces the value for key and resets its age.
// Callers must not modify v after calling Set.
func (s *Store[K, V]) Set(key K, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = &Entry[V]{
		Value:     v,
		UpdatedAt: s.now(),
	}
}

// Get returns the value for key if it was written less than TTL ago.
// A miss never modifies the store.
func (s *Store[K, V]) Get(key K) (V, bool) {
	e, ok := s.Entry(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Entry is like Get but also returns the write time.
func (s *Store[K, V]) Entry(key K) (Entry[V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	if !ok || !s.fresh(e, s.now()) {
		return Entry[V]{}, false
	}
	return *e, true
}

// Len returns the total number of entries currently held, including stale
// ones that have not been evicted yet.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose age at now is TTL or more.
// It returns the number of entries removed.
func (s *Store[K, V]) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.data {
		if !s.fresh(e, now) {
			delete(s.data, k)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second). Run blocks until ctx is cancelled.
func (s *Store[K, V]) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale snapshots", "count", n)
			}
		}
	}
}

func (s *Store[K, V]) fresh(e *Entry[V], now time.Time) bool {
	return now.Sub(e.UpdatedAt) < s.ttl
}
