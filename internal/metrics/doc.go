// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

/*
Package metrics provides Prometheus collectors for the gateway.

Metrics are exposed at /metrics in Prometheus text format:

	curl http://localhost:8443/metrics

Families:
  - habgate_api_*: request counts, latency, in-flight requests, rate limiting
  - habgate_gateway_decisions_total: allow/deny results of the authorization pipeline
  - habgate_proxy_targets_denied_total: SSRF allowlist rejections
  - habgate_upstream_*, habgate_circuit_breaker_*: forwarding health
  - habgate_websocket_*: upgrades and live connections

Authentication counters (logins, lockouts, CSRF) live in package auth.
*/
package metrics
