package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for upstream requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gorzdrav_upstream_requests_total",
		Help: "Total logical upstream requests by outcome",
	}, []string{"outcome"}) // "success", "transport", "domain", "validation"

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gorzdrav_upstream_request_duration_seconds",
		Help:    "Duration of logical upstream requests including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gorzdrav_upstream_errors_total",
		Help: "Total failed upstream attempts by error kind",
	}, []string{"kind"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gorzdrav_upstream_retries_total",
		Help: "Total number of retry attempts",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gorzdrav_upstream_retry_backoff_seconds",
		Help:    "Backoff duration before retries",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gorzdrav_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})
)
