package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorzdrav_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"}, // "memory", "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gorzdrav_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheEntries tracks entries written by layer
	CacheEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorzdrav_cache_writes_total",
			Help: "Total number of cache entries written",
		},
		[]string{"layer"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorzdrav_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "decode"
	)

	// SharedMisses tracks misses served by another caller's in-flight producer
	SharedMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gorzdrav_cache_shared_misses_total",
			Help: "Total number of cache misses coalesced by single-flight",
		},
	)
)
