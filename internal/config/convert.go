// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package config

import (
	"github.com/tomtom215/habgate/internal/api"
	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/gateway"
	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/upstream"
)

// AuthUsers returns the credential set, including the environment admin.
func (c *Config) AuthUsers() []auth.User {
	users := make([]auth.User, 0, len(c.Security.Users)+1)
	for _, u := range c.Security.Users {
		role, _ := auth.ParseRole(u.Role)
		users = append(users, auth.User{
			Username: u.Username,
			Password: u.Password,
			Role:     role,
			Disabled: u.Disabled,
			TrackGPS: u.TrackGPS,
		})
	}
	if c.Security.AdminUsername != "" {
		users = append(users, auth.User{
			Username: c.Security.AdminUsername,
			Password: c.Security.AdminPassword,
			Role:     auth.RoleAdmin,
		})
	}
	return users
}

// LockoutPolicy returns the lockout tracker configuration.
func (c *Config) LockoutPolicy() *auth.LockoutConfig {
	return &auth.LockoutConfig{
		Threshold: c.Security.Lockout.Threshold,
		Window:    c.Security.Lockout.Window,
		Enabled:   c.Security.Lockout.Enabled,
	}
}

// CSRFOptions returns the double-submit cookie and header settings.
func (c *Config) CSRFOptions() *auth.CSRFConfig {
	return &auth.CSRFConfig{
		CookieName:   c.Security.CSRF.CookieName,
		HeaderName:   c.Security.CSRF.HeaderName,
		CookieSecure: c.Security.Cookie.Secure,
	}
}

// GatewayConfig returns the pipeline policy.
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		Mode:           gateway.AuthMode(c.Security.AuthMode),
		AllowSubnets:   c.Security.AllowSubnets,
		LanSubnets:     c.Security.LanSubnets,
		LanBypass:      c.Security.LanBypass,
		TrustedProxies: c.Security.TrustedProxies,
		Cookie: auth.CookieOptions{
			Name:    c.Security.Cookie.Name,
			TTLDays: c.Security.Cookie.TTLDays,
			Secure:  c.Security.Cookie.Secure,
		},
		MaxTargetLength: c.Proxy.MaxTargetLength,
	}
}

// UpstreamConfig returns the forwarder settings. Gateway-owned cookies are
// never forwarded.
func (c *Config) UpstreamConfig() upstream.Config {
	return upstream.Config{
		BaseURL: c.Proxy.UpstreamURL,
		Timeout: c.Proxy.Timeout,
		Breaker: upstream.BreakerConfig{
			MaxFailures: c.Proxy.Breaker.MaxFailures,
			OpenTimeout: c.Proxy.Breaker.OpenTimeout,
		},
		RPS:          c.Proxy.OutboundRPS,
		Burst:        c.Proxy.OutboundBurst,
		StripCookies: []string{c.Security.Cookie.Name, c.Security.CSRF.CookieName},
	}
}

// APIOptions returns the router settings.
func (c *Config) APIOptions() api.Options {
	return api.Options{
		CORSOrigins:            c.Security.CORSOrigins,
		LoginRateLimitEnabled:  c.Security.LoginRateLimit.Enabled,
		LoginRateLimitRequests: c.Security.LoginRateLimit.Requests,
		LoginRateLimitWindow:   c.Security.LoginRateLimit.Window,
		TrustedProxies:         c.Security.TrustedProxies,
	}
}

// LoggingOptions returns the zerolog configuration.
func (c *Config) LoggingOptions() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Caller: c.Logging.Caller,
	}
}
