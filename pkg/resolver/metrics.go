package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lookups counts Resolve calls by the record status they found.
	lookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_resolver_lookups_total",
			Help: "Total number of resolver lookups by entity type and record status",
		},
		[]string{"type", "status"},
	)

	pendingIDs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lims_resolver_pending_ids",
			Help: "Ids waiting for the next flush",
		},
		[]string{"type"},
	)

	flushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_resolver_flushes_total",
			Help: "Total number of flush epochs",
		},
		[]string{"type"},
	)

	flushSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lims_resolver_flush_ids",
			Help:    "Number of ids per flush epoch",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"type"},
	)

	flushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lims_resolver_flush_duration_seconds",
			Help:    "Duration of a flush epoch including all chunk requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15},
		},
		[]string{"type"},
	)

	chunkRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_resolver_chunk_requests_total",
			Help: "Total number of chunk list requests by outcome",
		},
		[]string{"type", "outcome"}, // "ok", "error"
	)

	partialMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_resolver_partial_misses_total",
			Help: "Ids requested but omitted from a successful response",
		},
		[]string{"type"},
	)
)
