// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts counts credential verifications.
	// Labels:
	//   - method: "basic", "form"
	//   - outcome: "success", "failure", "locked"
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habgate_login_attempts_total",
			Help: "Total number of credential login attempts",
		},
		[]string{"method", "outcome"},
	)

	// LockoutsTotal counts keys that transitioned into the locked state.
	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habgate_lockouts_total",
			Help: "Total number of lockouts applied",
		},
	)

	// CookieVerifications counts authentication cookie checks.
	// Labels:
	//   - outcome: "valid", "rejected"
	CookieVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habgate_cookie_verifications_total",
			Help: "Total number of authentication cookie verifications",
		},
		[]string{"outcome"},
	)

	// CSRFFailures counts rejected state-changing requests.
	CSRFFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habgate_csrf_failures_total",
			Help: "Total number of requests rejected by the CSRF check",
		},
	)
)
