package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrimitra_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "agrimitra_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	GenerationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrimitra_generation_attempts_total",
			Help: "Backend invocation attempts",
		},
		[]string{"domain"},
	)

	GenerationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrimitra_generation_failures_total",
			Help: "Failed backend invocation attempts, including rejected output",
		},
		[]string{"domain"},
	)

	KeyRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrimitra_key_rotations_total",
			Help: "Credential rotations triggered by failed attempts",
		},
		[]string{"domain"},
	)

	GenerationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrimitra_generation_outcomes_total",
			Help: "Generation results by outcome (success, exhausted, inactive, canceled)",
		},
		[]string{"domain", "outcome"},
	)

	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agrimitra_generation_latency_seconds",
			Help:    "End-to-end generation latency across all attempts",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"domain"},
	)

	ScheduleTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrimitra_schedule_tasks_total",
			Help: "Schedule tasks extracted, by disposition (kept, past)",
		},
		[]string{"disposition"},
	)

	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agrimitra_sessions_expired_total",
			Help: "Conversation sessions purged after the idle TTL",
		},
	)
)
