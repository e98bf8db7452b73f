// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter

	PagesFetchedTotal    prometheus.Counter
	FetchRetriesTotal    *prometheus.CounterVec
	RangeSplitsTotal     prometheus.Counter
	RecordsLostTotal     prometheus.Counter
	IngestionCyclesTotal *prometheus.CounterVec
	IngestionDuration    prometheus.Histogram
	GenerationID         prometheus.Gauge
	GenerationRecords    prometheus.Gauge
	GenerationTokens     prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
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
				Help: "Total search queries by result type (hit, zero_result, invalid).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		PagesFetchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_pages_fetched_total",
				Help: "Successful page requests against the remote source.",
			},
		),
		FetchRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_fetch_retries_total",
				Help: "Page request retries by reason (network, rate_limited, server, circuit_open).",
			},
			[]string{"reason"},
		),
		RangeSplitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_range_splits_total",
				Help: "Page ranges split after a non-retriable failure.",
			},
		),
		RecordsLostTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_records_lost_total",
				Help: "Single records that could not be fetched.",
			},
		),
		IngestionCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_cycles_total",
				Help: "Ingestion cycles by status (published, failed).",
			},
			[]string{"status"},
		),
		IngestionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingestion_cycle_duration_seconds",
				Help:    "Wall time of a full ingestion cycle.",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
		GenerationID: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "generation_id",
				Help: "ID of the currently published generation.",
			},
		),
		GenerationRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "generation_records",
				Help: "Records in the currently published generation.",
			},
		),
		GenerationTokens: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "generation_tokens",
				Help: "Distinct tokens in the currently published generation.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.PagesFetchedTotal,
		m.FetchRetriesTotal,
		m.RangeSplitsTotal,
		m.RecordsLostTotal,
		m.IngestionCyclesTotal,
		m.IngestionDuration,
		m.GenerationID,
		m.GenerationRecords,
		m.GenerationTokens,
		m.CircuitBreakerState,
	)

	return m
}

// NewNop returns collectors registered with a private registry. It is meant
// for tests and tools that do not expose a scrape endpoint.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
