// Package metrics exposes beacon-server counters in the Prometheus text
// exposition format at GET /metrics.
//
// Counters are plain atomics bumped on the hot path. Gauges are read from
// their owners (dispatcher, store, allow-list) at scrape time through
// GaugeFunc, so nothing is sampled between scrapes.
package metrics
