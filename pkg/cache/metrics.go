package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks ids served from Redis by entity type
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_cache_hits_total",
			Help: "Total number of entity cache hits",
		},
		[]string{"type"},
	)

	// CacheMisses tracks ids not found in Redis by entity type
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_cache_misses_total",
			Help: "Total number of entity cache misses",
		},
		[]string{"type"},
	)

	// CacheWrittenBytes tracks payload bytes written to Redis
	CacheWrittenBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lims_cache_written_bytes_total",
			Help: "Total payload bytes written to the entity cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "decode"
	)
)
