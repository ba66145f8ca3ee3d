// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

// Package metrics exposes the Prometheus instrumentation for Tessera:
// recommendation latency per algorithm, specialist fan-out behavior, the
// two ingestion lanes, stats rebuilds, storage health, and cache efficiency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation metrics
	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tessera_recommendation_duration_seconds",
			Help:    "Duration of recommendation requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"algorithm", "cache"},
	)

	SpecialistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tessera_specialist_duration_seconds",
			Help:    "Duration of individual specialist ranking passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"algorithm"},
	)

	SpecialistEmpty = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_specialist_empty_total",
			Help: "Total number of specialist passes that produced no items",
		},
		[]string{"algorithm"},
	)

	// Ingestion metrics
	FastLaneDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tessera_fast_lane_duration_seconds",
			Help:    "Duration of synchronous ingestion handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"}, // "activity", "impression", "product_upsert", "product_delete"
	)

	IngestRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_ingest_rejected_total",
			Help: "Total number of ingestion requests rejected before storage",
		},
		[]string{"kind", "reason"},
	)

	DeferredPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tessera_deferred_pending_events",
			Help: "Events published to the deferred lane and not yet consumed",
		},
	)

	// Stats rebuild metrics
	RebuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tessera_stats_rebuild_duration_seconds",
			Help:    "Duration of tenant stats rebuilds in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"tenant"},
	)

	RebuildErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_stats_rebuild_errors_total",
			Help: "Total number of failed tenant stats rebuilds",
		},
		[]string{"tenant"},
	)

	// Storage metrics
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessera_storage_errors_total",
			Help: "Total number of storage operation failures",
		},
		[]string{"operation"},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tessera_storage_breaker_open",
			Help: "Whether the storage circuit breaker is open (1) or closed (0)",
		},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tessera_response_cache_hits_total",
			Help: "Total number of recommendation response cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tessera_response_cache_misses_total",
			Help: "Total number of recommendation response cache misses",
		},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tessera_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordRecommendation records one recommendation request.
func RecordRecommendation(algorithm string, cacheHit bool, d time.Duration) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
		CacheHits.Inc()
	} else {
		CacheMisses.Inc()
	}
	RecommendationDuration.WithLabelValues(algorithm, cache).Observe(d.Seconds())
}

// RecordSpecialist records one specialist ranking pass.
func RecordSpecialist(algorithm string, empty bool, d time.Duration) {
	SpecialistDuration.WithLabelValues(algorithm).Observe(d.Seconds())
	if empty {
		SpecialistEmpty.WithLabelValues(algorithm).Inc()
	}
}

// RecordFastLane records one synchronous ingestion operation.
func RecordFastLane(kind string, d time.Duration) {
	FastLaneDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordRejection records an ingestion request rejected before storage.
func RecordRejection(kind, reason string) {
	IngestRejected.WithLabelValues(kind, reason).Inc()
}

// RecordRebuild records one tenant stats rebuild.
func RecordRebuild(tenant string, d time.Duration, err error) {
	RebuildDuration.WithLabelValues(tenant).Observe(d.Seconds())
	if err != nil {
		RebuildErrors.WithLabelValues(tenant).Inc()
	}
}

// RecordStorageError records a failed storage operation.
func RecordStorageError(operation string) {
	StorageErrors.WithLabelValues(operation).Inc()
}

// SetBreakerOpen publishes the storage circuit breaker state.
func SetBreakerOpen(open bool) {
	if open {
		BreakerState.Set(1)
	} else {
		BreakerState.Set(0)
	}
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
