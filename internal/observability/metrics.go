package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation during shutdown drain.
	HTTPRequestsInFlight prometheus.Gauge

	// Geocoding upstream call rate. Watch for: error vs success ratio.
	GeocodeCallsTotal *prometheus.CounterVec

	// Geocoding upstream latency. Watch for: p95 > 2s (provider degradation).
	GeocodeDuration *prometheus.HistogramVec

	// Weather upstream call rate. Every entry here is one Open-Meteo request.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Weather upstream latency. Watch for: p99 > 5s (timeout risk at the 10s cap).
	WeatherAPIDuration *prometheus.HistogramVec

	// Cache hits by ZIP lookup. Hit rate = hits/(hits+misses).
	CacheHitsTotal prometheus.Counter

	// Cache misses by ZIP lookup.
	CacheMissesTotal prometheus.Counter

	// Backing-store failures by operation (read/write/delete/exists) and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Lookups served without cache involvement because the store was failing.
	CacheBypassTotal prometheus.Counter

	// Backing-store call latency per operation. Watch for: memcached p99 creep.
	CacheOperationDuration *prometheus.HistogramVec

	// Total address lookups served. rate() for QPS.
	ForecastLookupsTotal prometheus.Counter

	// Concurrent misses detected on one ZIP (stampede). Both callers hit upstream.
	CacheStampedeDetectedTotal *prometheus.CounterVec

	// Concurrency observed when a stampede is detected.
	CacheStampedeConcurrency prometheus.Histogram

	// Upstream calls avoided by the optional request coalescer.
	CoalescingHitsTotal prometheus.Counter

	// Time spent waiting on another caller's in-flight upstream fetch.
	CoalescingWaitSeconds prometheus.Histogram

	// Cache warming run counts and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Circuit breaker transitions on the weather client, labeled by from/to state.
	BreakerTransitionsTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	GeocodeCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocodeCallsTotal",
			Help: "Total number of geocoding upstream calls",
		},
		[]string{"status"},
	)
	GeocodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geocodeDurationSeconds",
			Help:    "Geocoding upstream latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather upstream calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather upstream latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of forecast cache hits. Hit rate = hits/(hits+misses).",
		},
	)
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of forecast cache misses",
		},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Backing-store failures surfaced by the forecast cache",
		},
		[]string{"operation", "category"},
	)
	CacheBypassTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheBypassTotal",
			Help: "Lookups that fell back to a direct upstream fetch after a cache failure",
		},
	)
	CacheOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Latency of cache store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
	ForecastLookupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastLookupsTotal",
			Help: "Total number of address lookups",
		},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Concurrent cache misses detected for the same postal code",
		},
		[]string{"zip"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Number of concurrent misses observed when a stampede is detected",
			Buckets: []float64{2, 3, 5, 10, 25},
		},
	)
	CoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Upstream fetches avoided by waiting on an in-flight request",
		},
	)
	CoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time spent waiting on a coalesced in-flight upstream fetch",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10},
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs started",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs that had at least one failed location",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of a cache warming run in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30},
		},
	)
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherBreakerTransitionsTotal",
			Help: "Weather-client circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		GeocodeCallsTotal, GeocodeDuration,
		WeatherAPICallsTotal, WeatherAPIDuration,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheBypassTotal,
		CacheOperationDuration,
		ForecastLookupsTotal,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency,
		CoalescingHitsTotal, CoalescingWaitSeconds,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		BreakerTransitionsTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// MetricZipLabel coarsens a ZIP code for use as a metric label. US ZIPs keep
// their three-digit prefix ("940xx"); anything else collapses to "other" so
// label cardinality stays bounded.
func MetricZipLabel(zip string) string {
	if len(zip) < 5 {
		return "other"
	}
	for _, r := range zip[:5] {
		if r < '0' || r > '9' {
			return "other"
		}
	}
	return zip[:3] + "xx"
}
