// Suggestus - Real-Time Recommendation Serving and Online Learning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/suggestus

// Package metrics provides Prometheus instrumentation for the serving and
// ingestion pipelines:
//   - recommendation request latency and cache efficiency
//   - event ingestion counts by type
//   - candidate source failures
//   - online-learning buffer depth and update outcomes
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_cache_hits_total",
			Help: "Total number of recommendation cache hits",
		},
		[]string{"tier"}, // "redis", "memory"
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_cache_misses_total",
			Help: "Total number of recommendation cache misses",
		},
	)

	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_cache_invalidations_total",
			Help: "Total number of per-user cache invalidations",
		},
	)

	CacheMemoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommendation_cache_memory_entries",
			Help: "Current number of entries in the in-process fallback cache",
		},
	)

	// Serving Metrics
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"model_type", "outcome"}, // outcome: "cached", "computed", "fallback"
	)

	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommend_request_duration_seconds",
			Help:    "Recommendation request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"model_type"},
	)

	CandidateSourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidate_source_failures_total",
			Help: "Total number of candidate retrieval failures by source",
		},
		[]string{"source"},
	)

	RankerFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ranker_fallbacks_total",
			Help: "Total number of requests served by initial-score fallback ordering",
		},
	)

	// Ingestion Metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_ingested_total",
			Help: "Total number of events ingested by type",
		},
		[]string{"event_type"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_rejected_total",
			Help: "Total number of events rejected at validation or persistence",
		},
		[]string{"reason"}, // "validation", "persistence"
	)

	// Online Learning Metrics
	FeedbackBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "online_learner_buffer_size",
			Help: "Current number of buffered feedback events",
		},
	)

	ModelUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "online_learner_updates_total",
			Help: "Total number of incremental model updates by model and outcome",
		},
		[]string{"model", "outcome"}, // outcome: "ok", "error"
	)

	ModelUpdateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "online_learner_update_duration_seconds",
			Help:    "Duration of incremental model updates in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
