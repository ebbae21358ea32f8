package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the Engine's atomic counter set plus its request-latency
// ring, optionally mirrored into a Prometheus registry. Every increment is
// a single atomic op; recording an outcome never takes a lock on the
// request path beyond the Histogram's own fine-grained mutex, which is
// never held across an upstream or store call.
type Registry struct {
	cacheHits   int64
	cacheMisses int64
	errors      int64
	circuitOpen int64

	jobsActive    int64
	jobsWaiting   int64
	jobsCompleted int64
	jobsFailed    int64

	latency *Histogram
	prom    *PromExporter
}

// NewRegistry builds a Registry with the default 1000-sample latency ring.
// If reg is non-nil, the registry's outcomes are also mirrored into
// Prometheus collectors registered against it.
func NewRegistry(reg *prometheus.Registry) *Registry {
	r := &Registry{latency: NewHistogram(defaultRingSize)}
	if reg != nil {
		r.prom = NewPromExporter(reg)
	}
	return r
}

// RecordOutcome is the single entry point for a completed request: outcome
// is one of "fresh", "stale", "miss", "fallback" or "error", and elapsed is
// the total request-path latency including any upstream fetch. "fresh" and
// "stale" count as cache hits; "miss", "fallback" and "error" all went to
// upstream and count as cache misses.
func (r *Registry) RecordOutcome(outcome string, elapsed time.Duration) {
	switch outcome {
	case "fresh", "stale":
		atomic.AddInt64(&r.cacheHits, 1)
	case "miss", "fallback", "error":
		atomic.AddInt64(&r.cacheMisses, 1)
	}
	r.latency.Record(elapsed)
	if r.prom != nil {
		r.prom.ObserveRequest(outcome, elapsed.Seconds())
	}
}

// RecordError increments the error counter; called alongside RecordOutcome
// for the "fallback" and "error" outcomes, which both represent an
// upstream failure regardless of whether a stale fallback was servable.
func (r *Registry) RecordError() { atomic.AddInt64(&r.errors, 1) }

// RecordCircuitOpen marks chain's breaker as having rejected a call.
func (r *Registry) RecordCircuitOpen(chain string) {
	atomic.AddInt64(&r.circuitOpen, 1)
	if r.prom != nil {
		r.prom.SetCircuitState(chain, 2)
	}
}

// JobStarted/JobCompleted/JobFailed satisfy queue.Recorder.
func (r *Registry) JobStarted() {
	atomic.AddInt64(&r.jobsActive, 1)
	atomic.AddInt64(&r.jobsWaiting, 1)
}

func (r *Registry) JobCompleted() {
	atomic.AddInt64(&r.jobsActive, -1)
	atomic.AddInt64(&r.jobsWaiting, -1)
	atomic.AddInt64(&r.jobsCompleted, 1)
	if r.prom != nil {
		r.prom.ObserveJob("completed")
	}
}

func (r *Registry) JobFailed() {
	atomic.AddInt64(&r.jobsActive, -1)
	atomic.AddInt64(&r.jobsWaiting, -1)
	atomic.AddInt64(&r.jobsFailed, 1)
	if r.prom != nil {
		r.prom.ObserveJob("failed")
	}
}

// Snapshot is a point-in-time, JSON-friendly view of the registry.
type Snapshot struct {
	CacheHits   int64   `json:"cacheHits"`
	CacheMisses int64   `json:"cacheMisses"`
	Errors      int64   `json:"errors"`
	CircuitOpen int64   `json:"circuitOpen"`
	HitRate     float64 `json:"hitRate"`

	JobsActive    int64 `json:"jobsActive"`
	JobsWaiting   int64 `json:"jobsWaiting"`
	JobsCompleted int64 `json:"jobsCompleted"`
	JobsFailed    int64 `json:"jobsFailed"`

	LatencyAvgMS float64 `json:"latencyAvgMs"`
	LatencyP50MS float64 `json:"latencyP50Ms"`
	LatencyP95MS float64 `json:"latencyP95Ms"`
	LatencyP99MS float64 `json:"latencyP99Ms"`
	LatencyCount int     `json:"latencyCount"`
}

// Snapshot takes a consistent-enough read of all counters. hitRate is 0
// when there have been no hits or misses yet.
func (r *Registry) Snapshot() Snapshot {
	hits := atomic.LoadInt64(&r.cacheHits)
	misses := atomic.LoadInt64(&r.cacheMisses)

	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	return Snapshot{
		CacheHits:   hits,
		CacheMisses: misses,
		Errors:      atomic.LoadInt64(&r.errors),
		CircuitOpen: atomic.LoadInt64(&r.circuitOpen),
		HitRate:     hitRate,

		JobsActive:    atomic.LoadInt64(&r.jobsActive),
		JobsWaiting:   atomic.LoadInt64(&r.jobsWaiting),
		JobsCompleted: atomic.LoadInt64(&r.jobsCompleted),
		JobsFailed:    atomic.LoadInt64(&r.jobsFailed),

		LatencyAvgMS: r.latency.Average(),
		LatencyP50MS: r.latency.P50(),
		LatencyP95MS: r.latency.P95(),
		LatencyP99MS: r.latency.P99(),
		LatencyCount: r.latency.Count(),
	}
}
