package ingest

import (
	"log/slog"

	"github.com/beaconrelay/beacon/server/internal/events"
)

// SnapshotWriter is the write side of the snapshot store.
type SnapshotWriter[K comparable, V any] interface {
	Set(key K, v V)
}

// Publisher is the publish side of the dispatcher.
type Publisher[K comparable, V any] interface {
	Publish(key K, v V) events.PublishResult
}

// Observer is notified after each ingested update.
type Observer interface {
	Ingested(res events.PublishResult)
}

// Adapter applies decoded updates to the snapshot store and the dispatcher.
type Adapter[K comparable, V any] struct {
	store SnapshotWriter[K, V]
	pub   Publisher[K, V]
	obs   Observer
}

// New wires an Adapter. It panics if store or pub is nil; obs may be nil.
func New[K comparable, V any](store SnapshotWriter[K, V], pub Publisher[K, V], obs Observer) *Adapter[K, V] {
	if store == nil || pub == nil {
		panic("ingest: store and publisher are required")
	}
	return &Adapter[K, V]{store: store, pub: pub, obs: obs}
}

// Ingest records v as the current state of key and fans it out to live
// subscribers.
func (a *Adapter[K, V]) Ingest(key K, v V) events.PublishResult {
	a.store.Set(key, v)
	res := a.pub.Publish(key, v)

	if res.Pruned > 0 {
		slog.Debug("ingest: pruned disconnected subscribers", "key", key, "count", res.Pruned)
	}
	if a.obs != nil {
		a.obs.Ingested(res)
	}
	return res
}
