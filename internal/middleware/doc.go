// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

/*
Package middleware provides the infrastructure middleware mounted in front of
the authorization pipeline.

Key Components:

  - RequestID: reuses or generates X-Request-ID and feeds it to the logging context
  - PrometheusMetrics: request count, latency and in-flight gauge keyed by chi route pattern
  - PerformanceMonitor: sliding window of recent latencies for the admin API
  - Compression: gzip for responses the gateway renders itself

All components use the func(http.Handler) http.Handler shape so they compose
with chi:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(perfMon.Middleware)

	r.Group(func(r chi.Router) {
	    r.Use(middleware.Compression)
	    r.Get("/login", loginPage)
	})

The instrumentation wrappers forward Flush and Hijack, so the reverse proxy
can stream and the WebSocket relay can upgrade behind them. Hijacked requests
are reported with status 101 and left out of the latency window.

See Also:

  - internal/gateway: authorization pipeline
  - internal/metrics: Prometheus metric definitions
*/
package middleware
