// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/habgate/internal/ipmatch"
	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/metrics"
)

// ChiMiddlewareConfig holds configuration for Chi middleware factories.
type ChiMiddlewareConfig struct {
	// CORS configuration
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int // seconds

	// Login rate limiting
	LoginRateLimitRequests int
	LoginRateLimitWindow   time.Duration
	LoginRateLimitDisabled bool

	// TrustedProxies decides whose X-Forwarded-For is used as the rate-limit key.
	TrustedProxies []string
}

// DefaultChiMiddlewareConfig returns a secure default configuration.
// CORS origins default to empty, requiring explicit configuration.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{},
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization", "X-CSRF-Token", "X-Request-ID"},
		CORSMaxAge:         86400,

		LoginRateLimitRequests: 20,
		LoginRateLimitWindow:   time.Minute,
	}
}

// ChiMiddleware provides Chi-compatible middleware factories.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware creates a new Chi middleware factory with the given configuration.
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = DefaultChiMiddlewareConfig()
	}

	// The auth cookie is sent cross-origin only to explicitly listed origins.
	allowCredentials := len(config.CORSAllowedOrigins) > 0
	for _, o := range config.CORSAllowedOrigins {
		if o == "*" {
			allowCredentials = false
		}
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.CORSAllowedOrigins,
		AllowedMethods:   config.CORSAllowedMethods,
		AllowedHeaders:   config.CORSAllowedHeaders,
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: allowCredentials,
		MaxAge:           config.CORSMaxAge,
	})

	return &ChiMiddleware{
		config: config,
		cors:   corsHandler,
	}
}

// CORS returns a Chi-compatible CORS middleware using go-chi/cors.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimitLogin limits login submissions per client address. It sits in
// front of the lockout tracker: lockout counts wrong passwords, this caps raw
// request volume.
func (m *ChiMiddleware) RateLimitLogin() func(http.Handler) http.Handler {
	if m.config.LoginRateLimitDisabled || m.config.LoginRateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	trusted := m.config.TrustedProxies
	keyByClient := func(r *http.Request) (string, error) {
		return ipmatch.ClientIP(r, trusted), nil
	}

	return httprate.Limit(
		m.config.LoginRateLimitRequests,
		m.config.LoginRateLimitWindow,
		httprate.WithKeyFuncs(keyByClient),
		httprate.WithLimitHandler(m.onLoginLimited),
	)
}

func (m *ChiMiddleware) onLoginLimited(w http.ResponseWriter, r *http.Request) {
	metrics.APIRateLimitHits.WithLabelValues("login").Inc()
	logging.Ctx(r.Context()).Warn().
		Str("ip", ipmatch.ClientIP(r, m.config.TrustedProxies)).
		Msg("Login rate limit exceeded")

	// httprate has already set Retry-After.
	writeError(w, http.StatusTooManyRequests, "Too many login requests")
}

// RejectDotSegments refuses decoded paths the dashboard server would
// normalize differently from the router: "." or ".." segments, empty inner
// segments, backslashes and ";" path parameters. Route exemptions and
// visibility checks match the literal path, so "/fonts/../rest/items" or
// "/rest/sitemaps;x" must never reach the pipeline.
func RejectDotSegments(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ambiguousPath(r.URL.Path) {
			writeError(w, http.StatusBadRequest, "Invalid request path")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ambiguousPath(p string) bool {
	if strings.ContainsAny(p, "\\;") {
		return true
	}
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		if seg == "." || seg == ".." {
			return true
		}
		if seg == "" && i > 0 && i < len(segs)-1 {
			return true
		}
	}
	return false
}
