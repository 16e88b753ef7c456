// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habgate_api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "habgate_api_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "habgate_api_active_requests",
			Help: "Number of requests currently being processed",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habgate_api_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiting",
		},
		[]string{"endpoint"},
	)

	// Gateway decisions
	GatewayDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habgate_gateway_decisions_total",
			Help: "Authorization pipeline outcomes",
		},
		[]string{"outcome", "reason"}, // outcome: "allow"/"deny"; reason: method or deny kind
	)

	ProxyTargetsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habgate_proxy_targets_denied_total",
			Help: "Outbound proxy targets rejected by validation or the allowlist",
		},
		[]string{"reason"},
	)

	VisibilityDenials = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habgate_visibility_denials_total",
			Help: "Writes rejected because the sitemap is not visible to the caller",
		},
	)

	// Upstream forwarding
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habgate_upstream_requests_total",
			Help: "Requests forwarded upstream",
		},
		[]string{"result"}, // "success", "failure", "rejected", "throttled"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "habgate_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habgate_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "habgate_websocket_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	WSUpgradeRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habgate_websocket_upgrade_rejections_total",
			Help: "WebSocket upgrades refused before the handshake",
		},
	)

	// Application
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "habgate_app_info",
			Help: "Application build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordAPIRequest records an HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordDecision records one pipeline outcome.
func RecordDecision(allowed bool, reason string) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	GatewayDecisions.WithLabelValues(outcome, reason).Inc()
}
