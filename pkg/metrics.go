package cache

// metrics.go contains a thin abstraction over Prometheus so that the cache
// can be used with or without metrics. When the user passes a
// *prometheus.Registry via WithMetrics, labeled metrics are created and
// exposed through that registry; otherwise a no-op sink is used and the hot
// path does not pay for metric updates.
//
// Metrics are labeled per *backend* ("inprocess" / "shared") rather than
// per shard — the in-process engine is no longer sharded (see engine.go),
// and the shared backend is a single mmap'd region per cache instance.
//
// ┌───────────────────────────────┬──────┬─────────┐
// │ Metric                        │ Type │ Labels  │
// ├───────────────────────────────┼──────┼─────────┤
// │ warp_cache_hits_total         │ Ctr  │ backend │
// │ warp_cache_misses_total       │ Ctr  │ backend │
// │ warp_cache_evictions_total    │ Ctr  │ backend │
// │ warp_cache_oversize_skips_total│ Ctr │ backend │
// └───────────────────────────────┴──────┴─────────┘
//
// © 2025 arena-cache authors. MIT License.

import (
    "github.com/prometheus/client_golang/prometheus"
)

// metricsSink is an internal interface abstracting away the concrete
// backend (Prometheus vs noop). It is not exposed outside the package.
type metricsSink interface {
    incHit(shard uint8)
    incMiss(shard uint8)
    incEvict(shard uint8)
    incOversizeSkip()
}

/*
   ---------------- No-op implementation ----------------
*/

type noopMetrics struct{}

func (noopMetrics) incHit(uint8)    {}
func (noopMetrics) incMiss(uint8)   {}
func (noopMetrics) incEvict(uint8)  {}
func (noopMetrics) incOversizeSkip() {}

/*
   ---------------- Prometheus implementation ----------------
*/

type promMetrics struct {
    backend string

    hits          *prometheus.CounterVec
    misses        *prometheus.CounterVec
    evictions     *prometheus.CounterVec
    oversizeSkips *prometheus.CounterVec
}

// newPromMetrics builds (or, for a shared registry, fetches already
// registered) counters labeled with backend ("inprocess" or "shared").
func newPromMetrics(backend string, reg *prometheus.Registry) *promMetrics {
    label := []string{"backend"}

    pm := &promMetrics{
        backend: backend,
        hits: prometheus.NewCounterVec(
            prometheus.CounterOpts{
                Namespace: "warp_cache",
                Name:      "hits_total",
                Help:      "Number of cache hits.",
            }, label),
        misses: prometheus.NewCounterVec(
            prometheus.CounterOpts{
                Namespace: "warp_cache",
                Name:      "misses_total",
                Help:      "Number of cache misses.",
            }, label),
        evictions: prometheus.NewCounterVec(
            prometheus.CounterOpts{
                Namespace: "warp_cache",
                Name:      "evictions_total",
                Help:      "Number of items evicted by the active policy.",
            }, label),
        oversizeSkips: prometheus.NewCounterVec(
            prometheus.CounterOpts{
                Namespace: "warp_cache",
                Name:      "oversize_skips_total",
                Help:      "Number of shared-backend inserts skipped for exceeding max_key_size/max_value_size.",
            }, label),
    }

    for _, cv := range []**prometheus.CounterVec{&pm.hits, &pm.misses, &pm.evictions, &pm.oversizeSkips} {
        if err := reg.Register(*cv); err != nil {
            are, ok := err.(prometheus.AlreadyRegisteredError)
            if !ok {
                panic(err)
            }
            *cv = are.ExistingCollector.(*prometheus.CounterVec)
        }
    }
    return pm
}

func (m *promMetrics) incHit(uint8)   { m.hits.WithLabelValues(m.backend).Inc() }
func (m *promMetrics) incMiss(uint8)  { m.misses.WithLabelValues(m.backend).Inc() }
func (m *promMetrics) incEvict(uint8) { m.evictions.WithLabelValues(m.backend).Inc() }
func (m *promMetrics) incOversizeSkip() {
    m.oversizeSkips.WithLabelValues(m.backend).Inc()
}

/*
   ---------------- Factory ----------------
*/

// newMetricsSink decides which implementation to use. backend is "inprocess"
// or "shared".
func newMetricsSink(backend string, reg *prometheus.Registry) metricsSink {
    if reg == nil {
        return noopMetrics{}
    }
    return newPromMetrics(backend, reg)
}

/*
   ---------------- Shared-backend adapter ----------------
*/

// sharedMetricsAdapter satisfies internal/shmcache.MetricsSink's exported,
// argument-free method set on top of a metricsSink built for the "shared"
// backend label; shmcache has no dependency on this package, so it defines
// its own minimal interface that this adapter bridges to.
type sharedMetricsAdapter struct {
    sink metricsSink
}

func (a sharedMetricsAdapter) IncHit()          { a.sink.incHit(0) }
func (a sharedMetricsAdapter) IncMiss()         { a.sink.incMiss(0) }
func (a sharedMetricsAdapter) IncEvict()        { a.sink.incEvict(0) }
func (a sharedMetricsAdapter) IncOversizeSkip() { a.sink.incOversizeSkip() }
