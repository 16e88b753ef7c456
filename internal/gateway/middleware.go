// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package gateway

import (
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/metrics"
)

// Middleware runs the pipeline in front of next. Denied requests, including
// WebSocket handshakes, are answered here and never reach next.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := p.Evaluate(r)
		for _, c := range out.Cookies {
			http.SetCookie(w, c)
		}

		if !out.Allowed() {
			reason := out.Reason()
			metrics.RecordDecision(false, reason.Kind.String())
			if isWebSocketUpgrade(r) {
				metrics.WSUpgradeRejections.Inc()
			}
			p.WriteDeny(w, r, reason)
			return
		}

		d := out.Decision()
		metrics.RecordDecision(true, d.Method)
		next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), d)))
	})
}

// RequireAuthenticated rejects exempt decisions; use on routes that need a user.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := DecisionFromContext(r.Context())
		if !ok || !d.Authenticated {
			writeJSONError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := DecisionFromContext(r.Context())
		if !ok || !d.IsAdmin() {
			writeJSONError(w, http.StatusForbidden, "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WriteDeny renders a refusal according to its kind, the auth mode and the
// kind of request (API call, page navigation, WebSocket handshake).
func (p *Pipeline) WriteDeny(w http.ResponseWriter, r *http.Request, reason Reason) {
	upgrade := isWebSocketUpgrade(r)
	if upgrade {
		w.Header().Set("Connection", "close")
	}
	page := !upgrade && p.cfg.Mode == ModeHTML && isHTMLNavigation(r)

	switch reason.Kind {
	case DenyLockedOut:
		if page {
			p.renderLoginPage(w, r, reason.Status, loginPageData{
				Error:            reason.Message,
				LockedOut:        true,
				RemainingSeconds: reason.RemainingSeconds,
			})
			return
		}
		auth.WriteLockoutResponse(w, reason.RemainingSeconds)
		return

	case DenyUnauthenticated:
		if page {
			if r.URL.Path == "/" {
				p.renderLoginPage(w, r, http.StatusOK, loginPageData{})
				return
			}
			http.Redirect(w, r, PathLogin+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		if p.cfg.Mode == ModeBasic {
			w.Header().Set("WWW-Authenticate", auth.BasicRealmHeader)
		}
	}

	writeJSONError(w, reason.Status, reason.Message)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON sends a JSON response with proper headers.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
