package events

import (
	"sync"

	"github.com/google/uuid"
)

// PublishResult reports what a single Publish did. It is informational;
// publishing never fails.
type PublishResult struct {
	Delivered int
	Pruned    int
}

// EventSource is the broadcast point for one subject. It holds the outlets
// registered against the subject and the last value published to it.
//
// Subscribe, Publish and Reap run under the exclusive lock, so a subscriber
// sees either a value in its initial snapshot or on its outlet, never both
// and never neither. LastEvent and Subscribers take the shared lock.
type EventSource[V any] struct {
	mu      sync.RWMutex
	order   []uuid.UUID
	outlets map[uuid.UUID]*Outlet[V]
	last    V
	hasLast bool
}

// NewEventSource returns an EventSource with no subscribers and no value.
func NewEventSource[V any]() *EventSource[V] {
	return &EventSource[V]{outlets: make(map[uuid.UUID]*Outlet[V])}
}

// Subscribe registers a new outlet and returns it together with the value
// most recently published, if any.
func (s *EventSource[V]) Subscribe() (*Outlet[V], V, bool) {
	o := newOutlet[V]()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.outlets[o.id] = o
	s.order = append(s.order, o.id)
	return o, s.last, s.hasLast
}

// LastEvent returns the value most recently published, if any.
func (s *EventSource[V]) LastEvent() (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// Publish records v as the last value and delivers it to every registered
// outlet in subscription order. Outlets whose reader has gone away are
// removed before Publish returns.
func (s *EventSource[V]) Publish(v V) PublishResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last, s.hasLast = v, true

	var res PublishResult
	var dead []uuid.UUID
	for _, id := range s.order {
		if s.outlets[id].send(v) {
			res.Delivered++
		} else {
			dead = append(dead, id)
		}
	}
	if len(dead) > 0 {
		s.remove(dead)
		res.Pruned = len(dead)
	}
	return res
}

// Reap removes outlets that have been closed without waiting for the next
// Publish. It returns the number of outlets removed.
func (s *EventSource[V]) Reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dead []uuid.UUID
	for _, id := range s.order {
		if s.outlets[id].Closed() {
			dead = append(dead, id)
		}
	}
	s.remove(dead)
	return len(dead)
}

// Subscribers returns the number of registered outlets, including closed
// outlets that have not been pruned yet.
func (s *EventSource[V]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outlets)
}

// remove must be called with s.mu held for writing.
func (s *EventSource[V]) remove(ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		delete(s.outlets, id)
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.outlets[id]; ok {
			kept = append(kept, id)
		}
	}
	for i := len(kept); i < len(s.order); i++ {
		s.order[i] = uuid.Nil
	}
	s.order = kept
}
