// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Point store
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deathatlas_db_query_duration_seconds",
			Help:    "Duration of point store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deathatlas_db_query_errors_total",
			Help: "Total number of point store query errors",
		},
		[]string{"operation"},
	)

	// Tile cache
	TileCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deathatlas_tile_cache_hits_total",
			Help: "Total number of tile cache hits",
		},
	)

	TileCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deathatlas_tile_cache_misses_total",
			Help: "Total number of tile cache misses",
		},
	)

	TileCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deathatlas_tile_cache_evictions_total",
			Help: "Total number of tiles evicted by the FIFO bound",
		},
	)

	TileCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deathatlas_tile_cache_entries",
			Help: "Current number of cached tiles",
		},
	)

	// Fetch coordinator
	TileFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deathatlas_tile_fetch_duration_seconds",
			Help:    "Duration of single-tile Point Source fetches",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
	)

	TileFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deathatlas_tile_fetch_failures_total",
			Help: "Total number of tile fetches that contributed zero points because of an error",
		},
		[]string{"reason"}, // "timeout", "status", "decode", "network", "breaker"
	)

	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deathatlas_refresh_total",
			Help: "Total number of viewport refreshes by outcome",
		},
		[]string{"outcome"}, // "committed", "superseded"
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deathatlas_refresh_duration_seconds",
			Help:    "End-to-end duration of committed refreshes",
			Buckets: prometheus.DefBuckets,
		},
	)

	MergedPoints = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deathatlas_refresh_points",
			Help:    "Deduplicated points per committed refresh",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	InvalidPointsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deathatlas_invalid_points_dropped_total",
			Help: "Total number of source rows dropped for invalid coordinates",
		},
		[]string{"stage"}, // "decode", "ingest"
	)

	// Clustering and interaction
	ClustersBuilt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deathatlas_clusters_built_total",
			Help: "Total number of same-coordinate clusters produced",
		},
	)

	TapActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deathatlas_tap_actions_total",
			Help: "Total number of marker taps by resulting action",
		},
		[]string{"action"},
	)

	SameSpotLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deathatlas_same_spot_lookups_total",
			Help: "Total number of same-spot lookups by result",
		},
		[]string{"result"}, // "ok", "fallback"
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deathatlas_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deathatlas_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deathatlas_api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)

	// Websocket map sessions
	WSActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deathatlas_ws_active_sessions",
			Help: "Current number of live websocket map sessions",
		},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deathatlas_ws_messages_received_total",
			Help: "Total websocket messages received by type",
		},
		[]string{"type"},
	)

	// Point Source circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deathatlas_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deathatlas_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deathatlas_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordDBQuery records a point store query.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records one served API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordRefresh records a refresh that finished either committed or superseded.
func RecordRefresh(committed bool, duration time.Duration, points int) {
	if !committed {
		RefreshTotal.WithLabelValues("superseded").Inc()
		return
	}
	RefreshTotal.WithLabelValues("committed").Inc()
	RefreshDuration.Observe(duration.Seconds())
	MergedPoints.Observe(float64(points))
}

// RecordTileFetch records one network tile fetch. reason is ignored on success.
func RecordTileFetch(duration time.Duration, failed bool, reason string) {
	TileFetchDuration.Observe(duration.Seconds())
	if failed {
		if reason == "" {
			reason = "network"
		}
		TileFetchFailures.WithLabelValues(reason).Inc()
	}
}

// RecordInvalidPoints adds n dropped rows for stage.
func RecordInvalidPoints(stage string, n int) {
	if n > 0 {
		InvalidPointsDropped.WithLabelValues(stage).Add(float64(n))
	}
}

// RecordSameSpotLookup records whether a same-spot lookup succeeded.
func RecordSameSpotLookup(ok bool) {
	if ok {
		SameSpotLookups.WithLabelValues("ok").Inc()
	} else {
		SameSpotLookups.WithLabelValues("fallback").Inc()
	}
}
