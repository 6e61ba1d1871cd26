package metrics

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/beaconrelay/beacon/server/internal/events"
)

// Metric names.
const (
	Ingested         = "beacon_ingested_total"
	Published        = "beacon_published_total"
	Delivered        = "beacon_delivered_total"
	Pruned           = "beacon_outlets_pruned_total"
	Reaped           = "beacon_outlets_reaped_total"
	SnapshotHits     = "beacon_snapshot_hits_total"
	SnapshotMisses   = "beacon_snapshot_misses_total"
	Rejected         = "beacon_rejected_total"
	Sources          = "beacon_sources"
	Subscribers      = "beacon_subscribers"
	SnapshotEntries  = "beacon_snapshot_entries"
	StreamsActive    = "beacon_streams_active"
	AllowListEntries = "beacon_allowlist_size"
)

var help = map[string]string{
	Ingested:         "Presence updates accepted by the ingestion adapter.",
	Published:        "Values published through the dispatcher.",
	Delivered:        "Values enqueued on subscriber outlets.",
	Pruned:           "Outlets removed after a failed delivery.",
	Reaped:           "Closed outlets removed by the periodic reaper.",
	SnapshotHits:     "Snapshot queries answered from a fresh entry.",
	SnapshotMisses:   "Snapshot queries for unknown or stale users.",
	Rejected:         "Updates or streams refused for users not in the allow list.",
	Sources:          "Event sources created since start.",
	Subscribers:      "Outlets currently registered.",
	SnapshotEntries:  "Entries held by the snapshot store, including stale ones.",
	StreamsActive:    "Open SSE and WebSocket streams.",
	AllowListEntries: "Users in the active allow list.",
}

// GaugeFunc reads a gauge's current value at scrape time.
type GaugeFunc func() float64

// Registry holds beacon's counters and gauge callbacks.
type Registry struct {
	ingested, published, delivered, pruned, reaped atomic.Uint64
	hits, misses, rejected                         atomic.Uint64
	streams                                        atomic.Int64

	mu     sync.RWMutex
	gauges map[string]GaugeFunc
}

// New creates an empty Registry. StreamsActive is always registered.
func New() *Registry {
	r := &Registry{gauges: make(map[string]GaugeFunc)}
	r.gauges[StreamsActive] = func() float64 { return float64(r.streams.Load()) }
	return r
}

// Ingested records one ingested update and its fan-out result.
// It satisfies ingest.Observer.
func (r *Registry) Ingested(res events.PublishResult) {
	r.ingested.Add(1)
	r.published.Add(1)
	r.delivered.Add(uint64(res.Delivered))
	r.pruned.Add(uint64(res.Pruned))
}

// Reaped records outlets removed by the periodic reaper.
func (r *Registry) Reaped(n int) { r.reaped.Add(uint64(n)) }

// SnapshotLookup records a snapshot query outcome.
func (r *Registry) SnapshotLookup(hit bool) {
	if hit {
		r.hits.Add(1)
	} else {
		r.misses.Add(1)
	}
}

// Rejected records a refused update or stream.
func (r *Registry) Rejected() { r.rejected.Add(1) }

// StreamOpened increments the active stream gauge and returns a func that
// decrements it.
func (r *Registry) StreamOpened() (closed func()) {
	r.streams.Add(1)
	var once sync.Once
	return func() { once.Do(func() { r.streams.Add(-1) }) }
}

// SetGauge registers fn as the source of gauge name.
func (r *Registry) SetGauge(name string, fn GaugeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = fn
}

// Gather returns every metric as a Prometheus metric family, sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	counters := map[string]uint64{
		Ingested:       r.ingested.Load(),
		Published:      r.published.Load(),
		Delivered:      r.delivered.Load(),
		Pruned:         r.pruned.Load(),
		Reaped:         r.reaped.Load(),
		SnapshotHits:   r.hits.Load(),
		SnapshotMisses: r.misses.Load(),
		Rejected:       r.rejected.Load(),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*dto.MetricFamily, 0, len(counters)+len(r.gauges))
	for name, v := range counters {
		out = append(out, &dto.MetricFamily{
			Name:   proto.String(name),
			Help:   proto.String(help[name]),
			Type:   dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(float64(v))}}},
		})
	}

	for name, fn := range r.gauges {
		out = append(out, &dto.MetricFamily{
			Name:   proto.String(name),
			Help:   proto.String(help[name]),
			Type:   dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(fn())}}},
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// ServeHTTP writes the text exposition of Gather.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
}
