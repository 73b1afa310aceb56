// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal tracks merge session transitions by target state and outcome
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "reconcile",
			Name:      "transitions_total",
			Help:      "Total number of merge session transitions by state and outcome",
		},
		[]string{"state", "outcome"},
	)

	// ApplyDuration tracks how long the locked apply step takes
	ApplyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "reconcile",
			Name:      "apply_duration_seconds",
			Help:      "Duration of merge apply operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// LockContention tracks apply or undo attempts rejected because the keeper was busy
	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "reconcile",
			Name:      "lock_contention_total",
			Help:      "Total number of keeper lock acquisitions that failed fast",
		},
		[]string{"operation"},
	)

	// SuggestionDuration tracks suggestion provider latency by provider and status
	SuggestionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "suggestion",
			Name:      "request_duration_seconds",
			Help:      "Duration of suggestion provider requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// AutoMergeGroupsTotal tracks auto-merge outcomes per group
	AutoMergeGroupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "automerge",
			Name:      "groups_total",
			Help:      "Total number of groups processed by auto-merge by outcome",
		},
		[]string{"outcome"},
	)

	// CandidatesScored tracks ranking work
	CandidatesScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "candidates_scored_total",
			Help:      "Total number of record pairs scored",
		},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"event_type", "status"},
	)

	// HTTPRequestDuration tracks API latency by route and status class
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// KafkaMessagesConsumed tracks ingested person record messages by outcome
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of messages consumed from Kafka by outcome",
		},
		[]string{"status"},
	)
)

// RecordTransition records a transition attempt
func RecordTransition(state, outcome string) {
	TransitionsTotal.WithLabelValues(state, outcome).Inc()
}

// RecordSuggestion records a suggestion provider call
func RecordSuggestion(provider, status string, durationSeconds float64) {
	SuggestionDuration.WithLabelValues(provider, status).Observe(durationSeconds)
}

// RecordAutoMerge records the outcome of one auto-merge group
func RecordAutoMerge(outcome string) {
	AutoMergeGroupsTotal.WithLabelValues(outcome).Inc()
}
