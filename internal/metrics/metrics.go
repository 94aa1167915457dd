// Package metrics exposes Prometheus instrumentation for the mix engine, the backend client
// and the playlist sweeps. Collectors register on the default registry at init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

var (
	// Similarity backend
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musemix_backend_requests_total",
			Help: "Total number of similarity backend requests",
		},
		[]string{"endpoint", "outcome"}, // "success", "status", "transport", "rejected"
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "musemix_backend_request_duration_seconds",
			Help:    "Duration of similarity backend requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "musemix_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musemix_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Mix aggregation
	MixRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musemix_mix_runs_total",
			Help: "Total number of instant mix aggregations",
		},
		[]string{"root_kind", "outcome"}, // "ok", "not_found", "aborted", "cancelled"
	)

	MixItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musemix_mix_items_total",
			Help: "Total number of items placed into mixes by source",
		},
		[]string{"source"}, // "anchor", "backend", "fallback"
	)

	MixDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "musemix_mix_duration_seconds",
			Help:    "Duration of instant mix aggregations in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ResolverMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musemix_resolver_matches_total",
			Help: "Candidate resolutions by strategy",
		},
		[]string{"strategy"}, // "native", "raw", "metadata", "miss"
	)

	// Playlist sync
	SyncOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musemix_sync_outcomes_total",
			Help: "Per-owner playlist sync outcomes",
		},
		[]string{"state"},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musemix_sweep_runs_total",
			Help: "Fingerprint sweep invocations by status",
		},
		[]string{"status"}, // "completed", "cancelled", "failed", "contended"
	)

	SweepInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "musemix_sweep_in_progress",
			Help: "1 while a fingerprint sweep holds the global lock",
		},
	)

	// HTTP server
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musemix_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "musemix_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveBackendRequest records one backend call.
func ObserveBackendRequest(endpoint, outcome string, started time.Time) {
	BackendRequests.WithLabelValues(endpoint, outcome).Inc()
	BackendRequestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
}

// BreakerStateValue maps a breaker state onto the gauge encoding.
func BreakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
