// Package cache provides a shared Redis layer for LIMS entity payloads.
//
// The resolver keeps its authoritative per-process state in memory. This
// package adds an optional cross-process response cache in front of the
// backend so that several proxy replicas (or restarts within the TTL) do not
// repeat the same list requests.
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache manager with a 5 minute TTL
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	// Wrap a backend lister
//	lister := cache.NewCachingLister[entity.Sample](
//		entity.TypeSample,
//		client.NewLister[entity.Sample](c, entity.TypeSample),
//		entity.Sample.EntityID,
//		manager,
//		logger,
//	)
//
// Ids found in Redis are served from there; only the remaining ids reach the
// backend, and whatever the backend returns is written back with the TTL.
// Redis failures never fail a lookup: the lister logs them and falls back to
// the backend.
//
// # Keys
//
// Keys have the form "lims:{type}:{id}", e.g. "lims:sample:42".
//
// # Metrics
//
// The cache exports Prometheus metrics:
//
//   - lims_cache_hits_total{type} - Ids served from Redis
//   - lims_cache_misses_total{type} - Ids not found in Redis
//   - lims_cache_written_bytes_total - Payload bytes written to Redis
//   - lims_cache_errors_total{operation} - Cache operation errors
package cache
