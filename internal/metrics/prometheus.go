package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"net/http"
)

// PromExporter mirrors the Registry's counters into Prometheus series so
// an operator can scrape the engine the same way they would any other
// service, alongside the plain JSON snapshot served at /metrics.json.
type PromExporter struct {
	requestLatency *prometheus.HistogramVec
	cacheResults   *prometheus.CounterVec
	cacheHitRatio  prometheus.Gauge
	circuitState   *prometheus.GaugeVec
	jobsTotal      *prometheus.CounterVec
}

// NewPromExporter constructs and registers the exporter's collectors
// against reg.
func NewPromExporter(reg *prometheus.Registry) *PromExporter {
	e := &PromExporter{
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricecache_request_duration_seconds",
			Help:    "Read-through request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricecache_cache_results_total",
			Help: "Count of request-path outcomes by result type.",
		}, []string{"result"}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricecache_cache_hit_ratio",
			Help: "Fraction of requests served from cache (fresh or stale).",
		}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pricecache_circuit_state",
			Help: "Per-chain circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}, []string{"chain"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricecache_refresh_jobs_total",
			Help: "Count of refresh worker job outcomes.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(e.requestLatency, e.cacheResults, e.cacheHitRatio, e.circuitState, e.jobsTotal)
	return e
}

func (e *PromExporter) ObserveRequest(outcome string, seconds float64) {
	e.requestLatency.WithLabelValues(outcome).Observe(seconds)
	e.cacheResults.WithLabelValues(outcome).Inc()
	e.updateHitRatio()
}

func (e *PromExporter) ObserveJob(outcome string) {
	e.jobsTotal.WithLabelValues(outcome).Inc()
}

func (e *PromExporter) SetCircuitState(chain string, state float64) {
	e.circuitState.WithLabelValues(chain).Set(state)
}

// updateHitRatio recomputes the gauge by reading back the counter series
// it just updated, mirroring the read-back-then-set pattern used for
// derived gauges over CounterVec values.
func (e *PromExporter) updateHitRatio() {
	metricCh := make(chan prometheus.Metric, 8)
	go func() {
		e.cacheResults.Collect(metricCh)
		close(metricCh)
	}()

	var hits, total float64
	for m := range metricCh {
		var dtoMetric dto.Metric
		if err := m.Write(&dtoMetric); err != nil {
			continue
		}
		v := dtoMetric.GetCounter().GetValue()
		total += v
		for _, label := range dtoMetric.GetLabel() {
			if label.GetName() == "result" && (label.GetValue() == "fresh" || label.GetValue() == "stale") {
				hits += v
			}
		}
	}

	if total > 0 {
		e.cacheHitRatio.Set(hits / total)
	}
}

// Handler returns the standard Prometheus scrape endpoint for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
