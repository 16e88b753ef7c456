// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package upstream

import (
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/metrics"
)

// BreakerConfig controls when the upstream circuit opens.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open before a trial request.
	OpenTimeout time.Duration
}

// statusError marks a 5xx upstream response as a breaker failure. The
// response itself is still returned to the client.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.code)
}

// breakerTransport wraps an http.RoundTripper with an outbound rate budget
// and a circuit breaker.
type breakerTransport struct {
	next    http.RoundTripper
	cb      *gobreaker.CircuitBreaker[*http.Response]
	limiter *rate.Limiter
	name    string
}

func newBreakerTransport(name string, next http.RoundTripper, cfg BreakerConfig, limiter *rate.Limiter) *breakerTransport {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	maxFailures := cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= maxFailures
			if trip {
				logging.Warn().
					Str("breaker", name).
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &breakerTransport{next: next, cb: cb, limiter: limiter, name: name}
}

// RoundTrip applies the rate budget, then runs the request through the breaker.
func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil && !t.limiter.Allow() {
		metrics.UpstreamRequests.WithLabelValues("throttled").Inc()
		return nil, ErrThrottled
	}

	resp, err := t.cb.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &statusError{code: resp.StatusCode}
		}
		return resp, nil
	})

	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues("success").Inc()
		return resp, nil
	case isStatusError(err) && resp != nil:
		metrics.UpstreamRequests.WithLabelValues("failure").Inc()
		return resp, nil
	case isBreakerRejection(err):
		metrics.UpstreamRequests.WithLabelValues("rejected").Inc()
		return nil, ErrUnavailable
	default:
		metrics.UpstreamRequests.WithLabelValues("failure").Inc()
		return nil, err
	}
}

// State reports the current breaker state.
func (t *breakerTransport) State() gobreaker.State {
	return t.cb.State()
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
