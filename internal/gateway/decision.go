// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package gateway

import (
	"context"
	"net/http"

	"github.com/tomtom215/habgate/internal/auth"
)

// AuthDecision is the per-request identity produced by the pipeline.
// It is created fresh for every request and never persisted.
type AuthDecision struct {
	Authenticated bool
	Username      string
	Role          auth.Role
	IsLan         bool
	Exempt        bool

	// Method is how the caller was admitted: "cookie", "basic", "lan" or "exempt".
	Method    string
	SessionID string
	ClientIP  string
}

// IsAdmin reports whether the decision carries the admin role.
func (d AuthDecision) IsAdmin() bool {
	return d.Authenticated && d.Role == auth.RoleAdmin
}

// DenyKind classifies why a request was refused.
type DenyKind int

const (
	DenyUnauthenticated DenyKind = iota
	DenyLockedOut
	DenyCSRF
	DenyForbidden
	DenySubnet
)

// String returns the metric/log label for the kind.
func (k DenyKind) String() string {
	switch k {
	case DenyUnauthenticated:
		return "unauthenticated"
	case DenyLockedOut:
		return "locked_out"
	case DenyCSRF:
		return "csrf"
	case DenyForbidden:
		return "forbidden"
	case DenySubnet:
		return "subnet"
	default:
		return "unknown"
	}
}

// Reason describes a refusal. Message is safe to show to the client.
type Reason struct {
	Kind             DenyKind
	Status           int
	Message          string
	RemainingSeconds int
}

func unauthenticated() Reason {
	return Reason{Kind: DenyUnauthenticated, Status: http.StatusUnauthorized, Message: "Authentication required"}
}

func lockedOut(remainingSeconds int) Reason {
	return Reason{
		Kind:             DenyLockedOut,
		Status:           http.StatusTooManyRequests,
		Message:          "Too many failed login attempts. Try again later.",
		RemainingSeconds: remainingSeconds,
	}
}

func csrfMismatch() Reason {
	return Reason{Kind: DenyCSRF, Status: http.StatusForbidden, Message: "CSRF token missing or invalid"}
}

// Forbidden builds a 403 reason with a short operator-facing message.
func Forbidden(message string) Reason {
	return Reason{Kind: DenyForbidden, Status: http.StatusForbidden, Message: message}
}

func subnetDenied() Reason {
	return Reason{Kind: DenySubnet, Status: http.StatusForbidden, Message: "Forbidden"}
}

// Outcome is either Allow(AuthDecision) or Deny(Reason).
// Cookies lists Set-Cookie headers the caller must emit either way.
type Outcome struct {
	decision AuthDecision
	reason   Reason
	allowed  bool
	Cookies  []*http.Cookie
}

// Allow builds an allowing outcome.
func Allow(d AuthDecision) Outcome {
	return Outcome{decision: d, allowed: true}
}

// Deny builds a refusing outcome.
func Deny(r Reason) Outcome {
	return Outcome{reason: r}
}

// Allowed reports whether the request may proceed.
func (o Outcome) Allowed() bool { return o.allowed }

// Decision returns the identity of an allowed request.
func (o Outcome) Decision() AuthDecision { return o.decision }

// Reason returns the refusal of a denied request.
func (o Outcome) Reason() Reason { return o.reason }

type contextKey string

const decisionKey contextKey = "auth_decision"

// WithDecision stores d in ctx for downstream handlers.
func WithDecision(ctx context.Context, d AuthDecision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}

// DecisionFromContext returns the decision stored by the middleware.
func DecisionFromContext(ctx context.Context) (AuthDecision, bool) {
	d, ok := ctx.Value(decisionKey).(AuthDecision)
	return d, ok
}

// RequestRole returns the role the pipeline assigned to r. Requests that
// never passed the pipeline get the normal role.
func RequestRole(r *http.Request) auth.Role {
	if d, ok := DecisionFromContext(r.Context()); ok && d.Role != "" {
		return d.Role
	}
	return auth.RoleNormal
}
