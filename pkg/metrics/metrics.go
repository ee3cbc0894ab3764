// Package metrics defines the Prometheus metric collectors used by the search
// and indexing services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	EmbeddingCacheHits   prometheus.Counter
	EmbeddingCacheMisses prometheus.Counter
	DocsProcessedTotal   *prometheus.CounterVec
	ChunksIndexedTotal   prometheus.Counter
	ChunksDeletedTotal   *prometheus.CounterVec
	CascadeFailuresTotal *prometheus.CounterVec
	SweepsTotal          *prometheus.CounterVec
	CorpusDocs           prometheus.Gauge
	CorpusTokens         prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg registers
// with the Prometheus default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
				Help: "Total search queries by search type and outcome (ok, zero_result, error).",
			},
			[]string{"search_type", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds by stage (keyword, vector, total).",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"stage"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of document-level results per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 200},
			},
		),
		EmbeddingCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "embedding_cache_hits_total",
				Help: "Query embeddings served from the cache.",
			},
		),
		EmbeddingCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "embedding_cache_misses_total",
				Help: "Query embeddings computed by the embedding provider.",
			},
		),
		DocsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_processed_total",
				Help: "Crawled documents by outcome (indexed, unchanged, failed, ignored).",
			},
			[]string{"outcome"},
		),
		ChunksIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chunks_indexed_total",
				Help: "Total chunks written to the document store and indexes.",
			},
		),
		ChunksDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunks_deleted_total",
				Help: "Chunks removed from the indexes by reason (sweep, shrink).",
			},
			[]string{"reason"},
		),
		CascadeFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascade_delete_failures_total",
				Help: "Failed cascade deletions by target (vector, postings, documents).",
			},
			[]string{"target"},
		),
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweeps_total",
				Help: "Mark-and-sweep passes by status.",
			},
			[]string{"status"},
		),
		CorpusDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_documents",
				Help: "Chunk count from the last totals recomputation.",
			},
		),
		CorpusTokens: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_tokens",
				Help: "Token count from the last totals recomputation.",
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
		m.SearchResultsCount,
		m.EmbeddingCacheHits,
		m.EmbeddingCacheMisses,
		m.DocsProcessedTotal,
		m.ChunksIndexedTotal,
		m.ChunksDeletedTotal,
		m.CascadeFailuresTotal,
		m.SweepsTotal,
		m.CorpusDocs,
		m.CorpusTokens,
		m.CircuitBreakerState,
	)

	return m
}

// NewUnregistered creates collectors on a private registry. Tests and the
// admin CLI use it so repeated construction never collides.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
