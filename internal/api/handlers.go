// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package api

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/gateway"
	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/middleware"
	"github.com/tomtom215/habgate/internal/upstream"
	"github.com/tomtom215/habgate/internal/validation"
	"github.com/tomtom215/habgate/internal/visibility"
)

// Handler serves the gateway-owned endpoints. Everything else is forwarded.
type Handler struct {
	pipeline    *gateway.Pipeline
	forwarder   *upstream.Forwarder
	settings    *visibility.Settings
	lockout     *auth.LockoutTracker
	performance *middleware.PerformanceMonitor
	startTime   time.Time
	now         func() time.Time
}

// HealthStatus is the body of GET /healthz.
type HealthStatus struct {
	Status   string  `json:"status"`
	Upstream string  `json:"upstream"`
	Uptime   float64 `json:"uptime_seconds"`
}

// Health reports liveness and the upstream circuit state. The gateway stays
// healthy while the dashboard server is down; the breaker state shows it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.forwarder.BreakerState()
	status := "healthy"
	if state != gobreaker.StateClosed {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:   status,
		Upstream: state.String(),
		Uptime:   h.now().Sub(h.startTime).Seconds(),
	})
}

// SelectedSitemapRequest is the body of POST /api/settings/selected-sitemap.
type SelectedSitemapRequest struct {
	Sitemap string `json:"sitemap" validate:"required,sitemap_name"`
}

// SelectedSitemapResponse reports the caller's stored selection ("" when none).
type SelectedSitemapResponse struct {
	Sitemap string `json:"sitemap"`
}

// GetSelectedSitemap returns the caller's selection if it is still visible.
func (h *Handler) GetSelectedSitemap(w http.ResponseWriter, r *http.Request) {
	d, _ := gateway.DecisionFromContext(r.Context())

	name, err := h.settings.SelectedSitemap(r.Context(), d.Username, d.Role)
	switch {
	case errors.Is(err, visibility.ErrSettingNotFound):
		writeJSON(w, http.StatusOK, SelectedSitemapResponse{})
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to read selected sitemap")
		writeError(w, http.StatusInternalServerError, "Failed to read settings")
	default:
		writeJSON(w, http.StatusOK, SelectedSitemapResponse{Sitemap: name})
	}
}

// SetSelectedSitemap persists the caller's selection. A sitemap the caller
// may not see is refused and nothing is written.
func (h *Handler) SetSelectedSitemap(w http.ResponseWriter, r *http.Request) {
	var req SelectedSitemapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}

	d, _ := gateway.DecisionFromContext(r.Context())
	err := h.settings.SetSelectedSitemap(r.Context(), d.Username, d.Role, req.Sitemap)
	switch {
	case errors.Is(err, visibility.ErrForbidden):
		h.pipeline.DenyVisibility(w, r, req.Sitemap)
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to store selected sitemap")
		writeError(w, http.StatusInternalServerError, "Failed to store settings")
	default:
		writeJSON(w, http.StatusOK, SelectedSitemapResponse{Sitemap: req.Sitemap})
	}
}

// LockoutView is one locked client in the admin listing.
type LockoutView struct {
	Key              string    `json:"key"`
	FailureCount     int       `json:"failure_count"`
	LockedUntil      time.Time `json:"locked_until"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// ListLockouts returns currently locked keys, soonest expiry first.
func (h *Handler) ListLockouts(w http.ResponseWriter, r *http.Request) {
	entries, err := h.lockout.Locked(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to list lockouts")
		writeError(w, http.StatusInternalServerError, "Failed to list lockouts")
		return
	}

	now := h.now()
	views := make([]LockoutView, 0, len(entries))
	for _, e := range entries {
		views = append(views, LockoutView{
			Key:              e.Key,
			FailureCount:     e.FailureCount,
			LockedUntil:      e.LockedUntil,
			RemainingSeconds: int(math.Ceil(e.LockedUntil.Sub(now).Seconds())),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lockouts": views})
}

// ClearLockout removes the lockout entry for {key}.
func (h *Handler) ClearLockout(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	err := h.lockout.Clear(r.Context(), key)
	switch {
	case errors.Is(err, auth.ErrLockoutNotFound):
		writeError(w, http.StatusNotFound, "No lockout for key")
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Str("key", key).Msg("Failed to clear lockout")
		writeError(w, http.StatusInternalServerError, "Failed to clear lockout")
	default:
		d, _ := gateway.DecisionFromContext(r.Context())
		logging.Ctx(r.Context()).Info().Str("key", key).Str("admin", logging.SanitizeUsername(d.Username)).Msg("Lockout cleared by admin")
		w.WriteHeader(http.StatusNoContent)
	}
}

// Performance returns per-endpoint latency over the recent request window.
func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"endpoints": h.performance.GetStats(),
	})
}

// Proxy fetches an allowlisted external URL (GET /proxy?url=...).
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing url parameter")
		return
	}

	target, reason := h.pipeline.CheckProxyTarget(r, raw)
	if reason != nil {
		h.pipeline.WriteDeny(w, r, *reason)
		return
	}
	h.forwarder.Fetch(w, r, target)
}

// Sitemap forwards one sitemap (and its pages) when the caller may see it.
// The event subscription endpoint names the sitemap in its query instead.
func (h *Handler) Sitemap(w http.ResponseWriter, r *http.Request) {
	name, ok := sitemapParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid sitemap name")
		return
	}

	d, _ := gateway.DecisionFromContext(r.Context())
	if name != "" && !h.pipeline.Visibility().IsSitemapVisible(name, d.Role) {
		h.pipeline.DenyVisibility(w, r, name)
		return
	}
	h.forwarder.ServeHTTP(w, r)
}

// sitemapParam returns the sitemap name the dashboard server will resolve.
// chi routes on the raw path, so the segment is still percent-encoded here.
func sitemapParam(r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || strings.Contains(name, "/") {
		return "", false
	}
	if name == "events" {
		return r.URL.Query().Get("sitemap"), true
	}
	return name, true
}
