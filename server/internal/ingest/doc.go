// Package ingest connects the upstream producer to the distribution core.
// Every update is written to the snapshot store and published through the
// dispatcher; the two effects are independent and both always happen.
package ingest
