// Copyright (C) 2025 InnerShift AI (engineering@innershift.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the engine service.
//
// # Description
//
// Metrics cover the protocol turn loop as seen from the HTTP surface:
// turns by operation and input kind, escalations by source, completions
// with their lap counts, request errors, and live websocket streams.
//
// Tenant is deliberately not a label anywhere in this package. Tenant ids
// are unbounded caller-supplied strings and would blow up series
// cardinality; per-tenant numbers belong in logs and traces.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "innershift"

// Subsystem for engine-service metrics
const engineSubsystem = "engine"

// EngineMetrics holds all Prometheus metrics for the protocol turn loop.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring turn throughput,
// escalation behavior, and session outcomes. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type EngineMetrics struct {
	// TurnsTotal counts protocol turns by operation and gate classification.
	// Labels: operation (start, advance, resume), input_kind (button, yes_no,
	// free_text_valid, free_text_invalid, or "" for opening turns)
	TurnsTotal *prometheus.CounterVec

	// EscalationsTotal counts clarification turns by wording source.
	// Labels: source (ai, fallback)
	EscalationsTotal *prometheus.CounterVec

	// SessionsStartedTotal counts sessions opened through the HTTP surface.
	SessionsStartedTotal prometheus.Counter

	// SessionsCompletedTotal counts sessions that reached a terminal step.
	// Labels: method (problem_shifting, identity_shifting, ...)
	SessionsCompletedTotal *prometheus.CounterVec

	// CompletionLaps observes the cycle count carried by terminal turns.
	// Labels: method
	CompletionLaps *prometheus.HistogramVec

	// TurnDurationSeconds measures wall time per turn, AI escalations
	// included, which is why the buckets stretch to tens of seconds.
	// Labels: operation (start, advance, resume)
	TurnDurationSeconds *prometheus.HistogramVec

	// ErrorsTotal counts failed requests by operation and error class.
	// Labels: operation, code (validation, not_found, conflict, empty_input,
	// session_errored, blocked, internal)
	ErrorsTotal *prometheus.CounterVec

	// ActiveStreams tracks currently open websocket turn loops.
	ActiveStreams prometheus.Gauge
}

// DefaultMetrics is the singleton instance of EngineMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *EngineMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics on the default registry.
// Call once at application startup; repeated calls return the existing
// instance instead of re-registering.
//
// # Outputs
//
//   - *EngineMetrics: The initialized metrics instance.
//
// # Examples
//
//	func main() {
//	    observability.InitMetrics()
//	    // ... start server ...
//	}
func InitMetrics() *EngineMetrics {
	if DefaultMetrics != nil {
		return DefaultMetrics
	}

	DefaultMetrics = &EngineMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "turns_total",
				Help:      "Protocol turns served by operation and input kind",
			},
			[]string{"operation", "input_kind"},
		),

		EscalationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "escalations_total",
				Help:      "Clarification turns by wording source",
			},
			[]string{"source"},
		),

		SessionsStartedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "sessions_started_total",
				Help:      "Sessions opened through the HTTP surface",
			},
		),

		SessionsCompletedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "sessions_completed_total",
				Help:      "Sessions that reached a terminal step, by method",
			},
			[]string{"method"},
		),

		CompletionLaps: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "completion_laps",
				Help:      "Dissolution laps recorded on terminal turns, by method",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
			},
			[]string{"method"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Wall time per turn including AI escalations",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
			},
			[]string{"operation"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "errors_total",
				Help:      "Failed requests by operation and error class",
			},
			[]string{"operation", "code"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "active_streams",
				Help:      "Currently open websocket turn loops",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode classifies a failed request for the errors_total metric.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request body or parameter validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeNotFound indicates the session does not exist in the tenant's scope.
	ErrorCodeNotFound ErrorCode = "not_found"

	// ErrorCodeConflict indicates an optimistic concurrency conflict in the store.
	ErrorCodeConflict ErrorCode = "conflict"

	// ErrorCodeEmptyInput indicates a turn submitted with no usable input.
	ErrorCodeEmptyInput ErrorCode = "empty_input"

	// ErrorCodeSessionErrored indicates a turn against a session a previous
	// fatal failure already took out of service.
	ErrorCodeSessionErrored ErrorCode = "session_errored"

	// ErrorCodeBlocked indicates input a deployment's safety filter refused.
	ErrorCodeBlocked ErrorCode = "blocked"

	// ErrorCodeInternal indicates an unexpected engine or store failure.
	ErrorCodeInternal ErrorCode = "internal"
)

// RecordError increments errors_total for one failed request.
//
// Safe to call on a nil receiver so handlers do not need to guard
// against metrics being disabled.
func (m *EngineMetrics) RecordError(operation string, code ErrorCode) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(operation, string(code)).Inc()
}

// RecordTurn increments turns_total and, when the turn is an escalation,
// escalations_total. Safe to call on a nil receiver.
func (m *EngineMetrics) RecordTurn(operation, inputKind string, escalated, usedAI bool) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(operation, inputKind).Inc()
	if escalated {
		source := "fallback"
		if usedAI {
			source = "ai"
		}
		m.EscalationsTotal.WithLabelValues(source).Inc()
	}
}
