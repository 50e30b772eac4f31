package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the worker pool.
var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gorzdrav_pool_queue_depth",
		Help: "Number of jobs waiting in the pool queue",
	})

	jobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gorzdrav_pool_jobs_in_flight",
		Help: "Number of jobs currently executing on a worker",
	})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gorzdrav_pool_jobs_total",
		Help: "Total jobs handled by workers by outcome",
	}, []string{"outcome"}) // "success", "error", "panic", "abandoned"

	queueWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gorzdrav_pool_queue_wait_seconds",
		Help:    "Time jobs spent in the queue before a worker picked them up",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
	})
)
