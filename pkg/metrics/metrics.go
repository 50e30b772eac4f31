// Package metrics exposes the Prometheus endpoint and the HTTP route metrics
// of the proxy. Component metrics are defined in their own packages
// (upstream, pool, cache) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gorzdrav_http_requests_total",
		Help: "Total HTTP requests served by route and status code",
	}, []string{"route", "code"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gorzdrav_http_request_duration_seconds",
		Help:    "HTTP request duration by route",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"route"})
)

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps h so its requests are counted and timed under route.
func Instrument(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(
		httpRequestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(httpRequestsTotal.MustCurryWith(labels), h),
	)
}

// Metrics Documentation
//
// Upstream Metrics (pkg/upstream):
//   - gorzdrav_upstream_requests_total{outcome} (Counter): Logical requests by outcome (success, transport, domain, validation)
//   - gorzdrav_upstream_request_duration_seconds (Histogram): Logical request duration including retries
//   - gorzdrav_upstream_errors_total{kind} (Counter): Failed attempts by error kind
//   - gorzdrav_upstream_retries_total (Counter): Retry attempts
//   - gorzdrav_upstream_retry_backoff_seconds (Histogram): Backoff before retries
//   - gorzdrav_upstream_retry_exhausted_total (Counter): Requests that used the whole attempt budget
//
// Pool Metrics (pkg/pool):
//   - gorzdrav_pool_queue_depth (Gauge): Jobs waiting in the queue
//   - gorzdrav_pool_jobs_in_flight (Gauge): Jobs running on a worker
//   - gorzdrav_pool_jobs_total{outcome} (Counter): Jobs by outcome (success, error, panic, abandoned)
//   - gorzdrav_pool_queue_wait_seconds (Histogram): Time from enqueue to dequeue
//
// Cache Metrics (pkg/cache):
//   - gorzdrav_cache_hits_total{layer} (Counter): Hits by store (memory, redis)
//   - gorzdrav_cache_misses_total (Counter): Misses
//   - gorzdrav_cache_writes_total{layer} (Counter): Entries written by store
//   - gorzdrav_cache_errors_total{operation} (Counter): Store and decode errors
//   - gorzdrav_cache_shared_misses_total (Counter): Misses coalesced by single-flight
//
// HTTP Metrics (pkg/metrics):
//   - gorzdrav_http_requests_total{route, code} (Counter)
//   - gorzdrav_http_request_duration_seconds{route} (Histogram)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(gorzdrav_cache_hits_total[5m])) /
//   (sum(rate(gorzdrav_cache_hits_total[5m])) + sum(rate(gorzdrav_cache_misses_total[5m])))
//
//   # Queue saturation
//   gorzdrav_pool_queue_depth > 50
//
//   # Upstream failure rate
//   sum(rate(gorzdrav_upstream_requests_total{outcome!="success"}[5m]))
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(gorzdrav_upstream_request_duration_seconds_bucket[5m]))
