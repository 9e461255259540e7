// Package metrics defines the Prometheus metric collectors for the serving
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the process.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	StageLatency       *prometheus.HistogramVec
	PartialResponses   prometheus.Counter
	RejectedQueries    prometheus.Counter

	CacheHitsTotal    *prometheus.CounterVec
	CacheMissesTotal  *prometheus.CounterVec
	FeatureWarmMisses prometheus.Counter

	EmbeddingTimeouts   prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec

	CurrentEpoch   prometheus.Gauge
	EpochReloads   *prometheus.CounterVec
	LiveCandidates *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (ok, zero_result, degraded, error, rejected).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "End-to-end search latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		StageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_latency_seconds",
				Help:    "Per-stage pipeline latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.08, 0.1, 0.2},
			},
			[]string{"stage"},
		),
		PartialResponses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_partial_responses_total",
				Help: "Responses served with at least one degraded upstream.",
			},
		),
		RejectedQueries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_rejected_total",
				Help: "Queries rejected at the ingress concurrency ceiling.",
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Cache hits by layer (query, feature, embedding).",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Cache misses by layer (query, feature, embedding).",
			},
			[]string{"layer"},
		),
		FeatureWarmMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "feature_warm_misses_total",
				Help: "Documents whose features were not yet warmed in the feature store.",
			},
		),
		EmbeddingTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "embedding_timeouts_total",
				Help: "Embedding service calls abandoned at the per-query deadline.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		CurrentEpoch: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_current_epoch",
				Help: "Currently published index epoch.",
			},
		),
		EpochReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_epoch_reloads_total",
				Help: "Epoch reload attempts by status.",
			},
			[]string{"status"},
		),
		LiveCandidates: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_candidates",
				Help:    "Candidate set size after merge and pre-filters.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 150, 250},
			},
			[]string{"source"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.StageLatency,
		m.PartialResponses,
		m.RejectedQueries,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.FeatureWarmMisses,
		m.EmbeddingTimeouts,
		m.CircuitBreakerState,
		m.CurrentEpoch,
		m.EpochReloads,
		m.LiveCandidates,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
