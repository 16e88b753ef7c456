// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/habgate/internal/validation"
)

// minCookieKeyLength is the shortest accepted HMAC secret.
const minCookieKeyLength = 16

// Validate checks struct tags first, then the rules that span fields.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validateProxy(); err != nil {
		return err
	}

	if err := c.validateSitemaps(); err != nil {
		return err
	}

	return c.validateStorage()
}

func (c *Config) validateServer() error {
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// validateSecurity validates security configuration
func (c *Config) validateSecurity() error {
	if err := c.validateCookie(); err != nil {
		return err
	}

	if err := c.validateUsers(); err != nil {
		return err
	}

	if c.Security.Lockout.Enabled && c.Security.Lockout.Window < time.Second {
		return fmt.Errorf("LOCKOUT_WINDOW must be at least 1s")
	}

	if !isCookieToken(c.Security.CSRF.CookieName) {
		return fmt.Errorf("CSRF_COOKIE_NAME %q is not a valid cookie name", c.Security.CSRF.CookieName)
	}
	if !isCookieToken(c.Security.CSRF.HeaderName) {
		return fmt.Errorf("CSRF_HEADER_NAME %q is not a valid header name", c.Security.CSRF.HeaderName)
	}
	if strings.EqualFold(c.Security.CSRF.CookieName, c.Security.Cookie.Name) {
		return fmt.Errorf("CSRF_COOKIE_NAME must differ from COOKIE_NAME")
	}

	if err := c.validateRateLimits(); err != nil {
		return err
	}

	return c.validateCORS()
}

func (c *Config) validateCookie() error {
	if !isCookieToken(c.Security.Cookie.Name) {
		return fmt.Errorf("COOKIE_NAME %q is not a valid cookie name", c.Security.Cookie.Name)
	}
	if len(c.Security.Cookie.Key) < minCookieKeyLength {
		return fmt.Errorf("COOKIE_KEY must be at least %d characters", minCookieKeyLength)
	}
	if c.IsProduction() && !c.Security.Cookie.Secure {
		return fmt.Errorf("COOKIE_SECURE=false is not allowed when ENVIRONMENT=production")
	}
	return nil
}

// validateUsers rejects duplicate usernames and a gateway nobody can enter.
func (c *Config) validateUsers() error {
	seen := make(map[string]struct{}, len(c.Security.Users)+1)
	for _, u := range c.Security.Users {
		if _, dup := seen[u.Username]; dup {
			return fmt.Errorf("duplicate user %q", u.Username)
		}
		seen[u.Username] = struct{}{}
	}

	if (c.Security.AdminUsername == "") != (c.Security.AdminPassword == "") {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	if c.Security.AdminUsername != "" {
		if _, dup := seen[c.Security.AdminUsername]; dup {
			return fmt.Errorf("ADMIN_USERNAME %q duplicates a configured user", c.Security.AdminUsername)
		}
		seen[c.Security.AdminUsername] = struct{}{}
	}

	if len(seen) == 0 && !c.Security.LanBypass {
		return fmt.Errorf("no users configured: set security.users or ADMIN_USERNAME/ADMIN_PASSWORD")
	}
	return nil
}

// Rate limit constants
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

// validateRateLimits validates login rate limiting bounds.
func (c *Config) validateRateLimits() error {
	rl := c.Security.LoginRateLimit
	if !rl.Enabled {
		return nil
	}
	if rl.Requests < minRateLimitRequests || rl.Requests > maxRateLimitRequests {
		return fmt.Errorf("LOGIN_RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if rl.Window < minRateLimitWindow || rl.Window > maxRateLimitWindow {
		return fmt.Errorf("LOGIN_RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// validateCORS rejects wildcard origins in production: credentialed
// requests from any site would be accepted.
func (c *Config) validateCORS() error {
	if c.IsProduction() && c.HasWildcardCORS() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed when ENVIRONMENT=production")
	}
	return nil
}

// HasWildcardCORS checks if CORS is configured with wildcard origins
func (c *Config) HasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (c *Config) validateProxy() error {
	u, err := url.Parse(c.Proxy.UpstreamURL)
	if err != nil {
		return fmt.Errorf("UPSTREAM_URL failed to parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("UPSTREAM_URL scheme must be http or https, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("UPSTREAM_URL host is required")
	}
	if u.RawQuery != "" {
		return fmt.Errorf("UPSTREAM_URL should not contain query parameters, remove: ?%s", u.RawQuery)
	}
	if c.Proxy.Timeout <= 0 {
		return fmt.Errorf("PROXY_TIMEOUT must be positive")
	}
	if c.Proxy.Breaker.OpenTimeout < time.Second {
		return fmt.Errorf("PROXY_BREAKER_TIMEOUT must be at least 1s")
	}
	return nil
}

func (c *Config) validateSitemaps() error {
	seen := make(map[string]struct{}, len(c.Sitemaps.Visibility))
	for _, r := range c.Sitemaps.Visibility {
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate visibility rule for sitemap %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Backend == "badger" && c.Storage.Path == "" {
		return fmt.Errorf("STORAGE_PATH is required when STORAGE_BACKEND=badger")
	}
	if c.Storage.GCInterval < time.Minute {
		return fmt.Errorf("STORAGE_GC_INTERVAL must be at least 1m")
	}
	return nil
}

// Warnings lists settings that are valid but probably not intended.
func (c *Config) Warnings() []string {
	var out []string
	if len(c.Security.AllowSubnets) == 0 {
		out = append(out, "security.allow_subnets is empty: every request will be denied")
	}
	if c.HasWildcardCORS() {
		out = append(out, "security.cors_origins contains '*': any site may call the API")
	}
	if c.Security.LanBypass && len(c.Security.LanSubnets) == 0 {
		out = append(out, "security.lan_bypass is set but security.lan_subnets is empty")
	}
	if !c.Security.Cookie.Secure {
		out = append(out, "security.cookie.secure is false: cookies will be sent over plain HTTP")
	}
	return out
}

// isCookieToken reports whether s is a non-empty RFC 7230 token.
func isCookieToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", b) >= 0:
		default:
			return false
		}
	}
	return true
}
