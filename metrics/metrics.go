// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the Prometheus collectors shared by searchgate components.
// Collectors are registered with the default registry on package load.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "searchgate"

var (
	// ToolCallsTotal counts dispatcher invocations by tool and outcome.
	ToolCallsTotal *prometheus.CounterVec

	// ToolDuration observes dispatcher invocation latency.
	ToolDuration *prometheus.HistogramVec

	// QuotaDecisionsTotal counts quota checks and consumes by outcome.
	QuotaDecisionsTotal *prometheus.CounterVec

	// CacheLookupsTotal counts result cache lookups by outcome.
	CacheLookupsTotal *prometheus.CounterVec

	// CacheEvictionsTotal counts entries removed by cleanup.
	CacheEvictionsTotal prometheus.Counter

	// OrchestrationsTotal counts orchestrated searches by content source and status.
	OrchestrationsTotal *prometheus.CounterVec

	// NotificationsTotal counts notification emissions by type and outcome.
	NotificationsTotal *prometheus.CounterVec

	// CircuitBreakerState reports provider breaker state.
	CircuitBreakerState *prometheus.GaugeVec

	// ExternalProviderLatency observes web search provider response time.
	ExternalProviderLatency *prometheus.HistogramVec
)

func init() {
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations",
		},
		[]string{"tool_name", "status"},
	)

	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool_name"},
	)

	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "decisions_total",
			Help:      "Quota decisions by operation and outcome",
		},
		[]string{"operation", "resource", "outcome"},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Expired cache entries removed by cleanup",
		},
	)

	OrchestrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "searches_total",
			Help:      "Orchestrated searches by content source and status",
		},
		[]string{"content_source", "status"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notification emissions by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websearch",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 0.5=half-open, 1=open)",
		},
		[]string{"provider"},
	)

	ExternalProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websearch",
			Name:      "provider_latency_seconds",
			Help:      "External provider response time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "status"},
	)

	prometheus.MustRegister(
		ToolCallsTotal,
		ToolDuration,
		QuotaDecisionsTotal,
		CacheLookupsTotal,
		CacheEvictionsTotal,
		OrchestrationsTotal,
		NotificationsTotal,
		CircuitBreakerState,
		ExternalProviderLatency,
	)
}

// RecordToolCall records a tool invocation
func RecordToolCall(toolName, status string, durationSec float64) {
	if status == "" {
		status = "unknown"
	}
	ToolCallsTotal.WithLabelValues(toolName, status).Inc()
	ToolDuration.WithLabelValues(toolName).Observe(durationSec)
}

// RecordQuotaDecision records the outcome of a quota check or consume
func RecordQuotaDecision(operation, resource, outcome string) {
	QuotaDecisionsTotal.WithLabelValues(operation, resource, outcome).Inc()
}

// RecordCacheLookup records a cache hit, miss or error
func RecordCacheLookup(outcome string) {
	CacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheEvictions records entries removed by cleanup
func RecordCacheEvictions(n int) {
	if n <= 0 {
		return
	}
	CacheEvictionsTotal.Add(float64(n))
}

// RecordOrchestration records a completed orchestrated search
func RecordOrchestration(contentSource, status string) {
	OrchestrationsTotal.WithLabelValues(contentSource, status).Inc()
}

// RecordNotification records a notification emission attempt
func RecordNotification(notificationType, outcome string) {
	NotificationsTotal.WithLabelValues(notificationType, outcome).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
func SetCircuitBreakerState(provider string, state string) {
	var val float64
	switch state {
	case "closed":
		val = 0.0
	case "half-open":
		val = 0.5
	case "open":
		val = 1.0
	}
	CircuitBreakerState.WithLabelValues(provider).Set(val)
}

// RecordExternalProviderLatency records external provider response time
func RecordExternalProviderLatency(provider, status string, durationSec float64) {
	ExternalProviderLatency.WithLabelValues(provider, status).Observe(durationSec)
}
