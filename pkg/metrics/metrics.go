// Package metrics provides centralized Prometheus metrics registry for the
// LIMS resolver. All metrics are defined in their respective packages
// (resolver, client, cache, ratelimit) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation, the shared registry and the HTTP
// handler that exposes it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the resolver.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Resolver Metrics (pkg/resolver):
//   - lims_resolver_lookups_total{type, status} (Counter): Lookups by entity type and record status
//   - lims_resolver_pending_ids{type} (Gauge): Ids waiting for the next flush
//   - lims_resolver_flushes_total{type} (Counter): Flush epochs
//   - lims_resolver_flush_ids{type} (Histogram): Ids per flush epoch
//   - lims_resolver_flush_duration_seconds{type} (Histogram): Flush duration
//   - lims_resolver_chunk_requests_total{type, outcome} (Counter): Chunk requests by outcome (ok, error)
//   - lims_resolver_partial_misses_total{type} (Counter): Requested ids omitted from a successful response
//
// Cache Metrics (pkg/cache):
//   - lims_cache_hits_total{type} (Counter): Ids served from Redis
//   - lims_cache_misses_total{type} (Counter): Ids not found in Redis
//   - lims_cache_written_bytes_total (Counter): Payload bytes written to Redis
//   - lims_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - lims_backend_requests_total{type, status} (Counter): Backend requests by entity type and HTTP status
//   - lims_backend_request_duration_seconds{type} (Histogram): Request duration by entity type
//   - lims_backend_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - lims_backend_retries_total{error_class} (Counter): Retry attempts by error class
//   - lims_backend_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - lims_backend_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - lims_rate_limit_blocked_seconds (Gauge): Seconds until the backend accepts requests again
//   - lims_rate_limit_hits_total (Counter): Responses that asked for a back-off
//   - lims_rate_limit_waits_total (Counter): Requests delayed by an active block
//
// Example Prometheus Queries:
//
//   # Coalescing factor (lookups per backend request)
//   sum(rate(lims_resolver_lookups_total{status="absent"}[5m])) /
//   sum(rate(lims_backend_requests_total[5m]))
//
//   # Cache Hit Rate
//   sum(rate(lims_cache_hits_total[5m])) /
//   (sum(rate(lims_cache_hits_total[5m])) + sum(rate(lims_cache_misses_total[5m])))
//
//   # Failed chunk rate
//   rate(lims_resolver_chunk_requests_total{outcome="error"}[5m])
//
//   # P95 Flush Latency
//   histogram_quantile(0.95, rate(lims_resolver_flush_duration_seconds_bucket[5m]))
