// Package store holds the latest value per subject with a fixed TTL. It
// answers point-in-time queries without a subscription. Entries older than
// the TTL read as absent immediately and are physically evicted by Run.
package store
