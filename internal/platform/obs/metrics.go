package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the distance cache.
type Metrics struct {
	// labels: mode={walking,driving}, result={hit,miss}
	Lookups *prometheus.CounterVec
	// labels: mode, outcome={success,error,rejected,fallback}
	ProviderRequests *prometheus.CounterVec
	// labels: mode
	ProviderDuration *prometheus.HistogramVec
	// labels: mode; 0 closed, 1 half-open, 2 open
	BreakerState *prometheus.GaugeVec
	// labels: outcome={success,error}
	StoreWrites *prometheus.CounterVec
	// Entries dropped from batch requests after a per-entry failure.
	BatchDropped prometheus.Counter
	// labels: method, route, status
	HTTPRequests *prometheus.CounterVec
	// labels: method, route
	HTTPDuration *prometheus.HistogramVec
}

func newMetrics() *Metrics {
	return &Metrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distance_cache",
			Name:      "lookups_total",
			Help:      "Distance lookups by travel mode and cache result.",
		}, []string{"mode", "result"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distance_cache",
			Name:      "provider_requests_total",
			Help:      "Routing provider calls by travel mode and outcome.",
		}, []string{"mode", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "distance_cache",
			Name:      "provider_duration_seconds",
			Help:      "Routing provider call duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"mode"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "distance_cache",
			Name:      "provider_breaker_state",
			Help:      "Routing provider circuit breaker state per travel mode.",
		}, []string{"mode"}),
		StoreWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distance_cache",
			Name:      "store_writes_total",
			Help:      "Distance record upserts by outcome.",
		}, []string{"outcome"}),
		BatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "distance_cache",
			Name:      "batch_dropped_total",
			Help:      "Batch entries omitted because their computation failed.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "distance_cache",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "distance_cache",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// NewMetrics creates the collectors and registers them with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Lookups,
		m.ProviderRequests,
		m.ProviderDuration,
		m.BreakerState,
		m.StoreWrites,
		m.BatchDropped,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build
// as many instances as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
