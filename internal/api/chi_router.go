// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/gateway"
	"github.com/tomtom215/habgate/internal/middleware"
	"github.com/tomtom215/habgate/internal/upstream"
	"github.com/tomtom215/habgate/internal/visibility"
)

// DefaultWebSocketPath is the dashboard server's event socket.
const DefaultWebSocketPath = "/ws"

// Options configures the router.
type Options struct {
	CORSOrigins []string

	LoginRateLimitEnabled  bool
	LoginRateLimitRequests int
	LoginRateLimitWindow   time.Duration

	TrustedProxies []string

	// WebSocketPath is relayed to the same path upstream (default "/ws").
	WebSocketPath string
}

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Pipeline    *gateway.Pipeline
	Forwarder   *upstream.Forwarder
	Settings    *visibility.Settings
	Lockout     *auth.LockoutTracker
	Performance *middleware.PerformanceMonitor
}

// Router owns the HTTP surface of the gateway.
type Router struct {
	opts          Options
	deps          Deps
	handler       *Handler
	chiMiddleware *ChiMiddleware
	relay         *upstream.Relay
}

// NewRouter checks deps and prepares the handlers.
func NewRouter(opts Options, deps Deps) (*Router, error) {
	switch {
	case deps.Pipeline == nil:
		return nil, fmt.Errorf("%w: pipeline", ErrMissingDependency)
	case deps.Forwarder == nil:
		return nil, fmt.Errorf("%w: forwarder", ErrMissingDependency)
	case deps.Settings == nil:
		return nil, fmt.Errorf("%w: settings", ErrMissingDependency)
	case deps.Lockout == nil:
		return nil, fmt.Errorf("%w: lockout tracker", ErrMissingDependency)
	}
	if deps.Performance == nil {
		deps.Performance = middleware.NewPerformanceMonitor(1000, middleware.DefaultSlowThreshold)
	}
	if opts.WebSocketPath == "" {
		opts.WebSocketPath = DefaultWebSocketPath
	}

	mwConfig := DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = opts.CORSOrigins
	mwConfig.LoginRateLimitDisabled = !opts.LoginRateLimitEnabled
	mwConfig.LoginRateLimitRequests = opts.LoginRateLimitRequests
	mwConfig.LoginRateLimitWindow = opts.LoginRateLimitWindow
	mwConfig.TrustedProxies = opts.TrustedProxies

	return &Router{
		opts: opts,
		deps: deps,
		handler: &Handler{
			pipeline:    deps.Pipeline,
			forwarder:   deps.Forwarder,
			settings:    deps.Settings,
			lockout:     deps.Lockout,
			performance: deps.Performance,
			startTime:   time.Now(),
			now:         time.Now,
		},
		chiMiddleware: NewChiMiddleware(mwConfig),
		relay:         upstream.NewRelay(deps.Forwarder, opts.WebSocketPath, opts.CORSOrigins),
	}, nil
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()
	p := router.deps.Pipeline
	h := router.handler

	// ========================
	// Global Middleware Stack
	// ========================
	// The authorization pipeline is last so every route, including the ones
	// it exempts, passes the subnet gate.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(RejectDotSegments)
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.deps.Performance.Middleware)
	r.Use(router.chiMiddleware.CORS())
	r.Use(p.Middleware)

	r.Get(gateway.PathHealth, h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ========================
	// Gateway-rendered endpoints
	// ========================
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compression)

		r.Get(gateway.PathLogin, p.HandleLoginPage)
		r.Get(gateway.PathLoginScript, p.HandleLoginScript)
		r.With(router.chiMiddleware.RateLimitLogin()).Post(gateway.PathLoginAPI, p.HandleLogin)
		r.Post(gateway.PathLogoutAPI, p.HandleLogout)

		r.Route("/api/settings", func(r chi.Router) {
			r.Use(gateway.RequireAuthenticated)
			r.Get("/selected-sitemap", h.GetSelectedSitemap)
			r.Post("/selected-sitemap", h.SetSelectedSitemap)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(gateway.RequireAdmin)
			r.Get("/lockouts", h.ListLockouts)
			r.Delete("/lockouts/{key}", h.ClearLockout)
			r.Get("/performance", h.Performance)
		})
	})

	// ========================
	// Outbound fetches (SSRF boundary)
	// ========================
	r.Get("/proxy", h.Proxy)
	r.Get("/video-preview", h.Proxy)

	// ========================
	// Dashboard server
	// ========================
	r.Get(router.opts.WebSocketPath, router.relay.ServeHTTP)
	r.Handle("/rest/sitemaps/{name}", http.HandlerFunc(h.Sitemap))
	r.Handle("/rest/sitemaps/{name}/*", http.HandlerFunc(h.Sitemap))
	r.Handle("/*", router.deps.Forwarder)

	return r
}
