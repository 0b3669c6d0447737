// Package metrics exposes Prometheus collectors for the query engine.
// Collectors are registered once at init time; callers use the exported
// helpers instead of touching collectors directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsearch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fedsearch_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fedsearch_cache_hits_total",
			Help: "Total number of query cache hits.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fedsearch_cache_misses_total",
			Help: "Total number of query cache misses.",
		},
	)

	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fedsearch_cache_evictions_total",
			Help: "Total number of cache entries evicted by TTL or size pressure.",
		},
	)

	cacheProductionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fedsearch_cache_productions_total",
			Help: "Total number of producer executions on cache misses.",
		},
	)

	cacheProductionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fedsearch_cache_production_duration_seconds",
			Help:    "Latency of result production on cache misses.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedsearch_cache_entries",
			Help: "Current number of keys held by the cache store.",
		},
	)

	cacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fedsearch_cache_size_bytes",
			Help: "Current serialized size of the cache store in bytes.",
		},
	)

	sqlGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsearch_sql_generated_total",
			Help: "Total number of SQL generation attempts by method and verdict.",
		},
		[]string{"method", "verdict"},
	)

	searchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fedsearch_search_requests_total",
			Help: "Total number of federated search invocations by outcome.",
		},
		[]string{"status"},
	)

	searchSourceSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fedsearch_search_source_duration_seconds",
			Help:    "Per-source search path latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "status"},
	)

	schemaIndexSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fedsearch_schema_index_duration_seconds",
			Help:    "Latency of schema introspection and embedding runs.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheProductionsTotal,
		cacheProductionSeconds,
		cacheEntries,
		cacheSizeBytes,
		sqlGeneratedTotal,
		searchRequestsTotal,
		searchSourceSeconds,
		schemaIndexSeconds,
	)
}

func ObserveHTTPRequest(method, path, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, path, status).Observe(elapsed.Seconds())
}

func IncrementCacheHit()  { cacheHitsTotal.Inc() }
func IncrementCacheMiss() { cacheMissesTotal.Inc() }

func IncrementCacheEvictions(n int) {
	if n > 0 {
		cacheEvictionsTotal.Add(float64(n))
	}
}

func ObserveCacheProduction(elapsed time.Duration) {
	cacheProductionsTotal.Inc()
	cacheProductionSeconds.Observe(elapsed.Seconds())
}

func SetCacheUsage(entries int, sizeBytes int64) {
	cacheEntries.Set(float64(entries))
	cacheSizeBytes.Set(float64(sizeBytes))
}

func ObserveSQLGeneration(method, verdict string) {
	sqlGeneratedTotal.WithLabelValues(method, verdict).Inc()
}

func ObserveSearch(status string) {
	searchRequestsTotal.WithLabelValues(status).Inc()
}

func ObserveSearchSource(source, status string, elapsed time.Duration) {
	searchSourceSeconds.WithLabelValues(source, status).Observe(elapsed.Seconds())
}

func ObserveSchemaIndex(elapsed time.Duration) {
	schemaIndexSeconds.Observe(elapsed.Seconds())
}
