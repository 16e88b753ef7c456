// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package config

import (
	"time"

	"github.com/tomtom215/habgate/internal/visibility"
)

// Config holds all gateway configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override individual settings
//
// Users and sitemap visibility rules are lists and are normally kept in the
// config file. The single admin account may also come from ADMIN_USERNAME and
// ADMIN_PASSWORD.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Proxy    ProxyConfig    `koanf:"proxy"`
	Sitemaps SitemapsConfig `koanf:"sitemaps"`
	Storage  StorageConfig  `koanf:"storage"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Environment is "development" or "production". Production rejects
	// insecure cookie and CORS settings.
	Environment string `koanf:"environment" validate:"oneof=development production"`

	// WatchConfig reloads users, visibility rules and the cookie key when the
	// config file changes.
	WatchConfig bool `koanf:"watch_config"`
}

// SecurityConfig holds the authorization pipeline policy.
type SecurityConfig struct {
	// AuthMode is "basic" (401 + WWW-Authenticate) or "html" (login page).
	AuthMode string `koanf:"auth_mode" validate:"oneof=basic html"`

	// AllowSubnets gates every request. Empty denies everyone; "0.0.0.0" allows everyone.
	AllowSubnets []string `koanf:"allow_subnets" validate:"dive,cidr_entry"`

	// LanSubnets mark clients as local.
	LanSubnets []string `koanf:"lan_subnets" validate:"dive,cidr_entry"`

	// LanBypass admits LAN clients without credentials.
	LanBypass bool `koanf:"lan_bypass"`

	// TrustedProxies are peers whose X-Forwarded-For is believed.
	TrustedProxies []string `koanf:"trusted_proxies" validate:"dive,cidr_entry"`

	Users []UserConfig `koanf:"users" validate:"dive"`

	// AdminUsername/AdminPassword add one admin user, typically from the environment.
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`

	Cookie         CookieConfig    `koanf:"cookie"`
	Lockout        LockoutConfig   `koanf:"lockout"`
	CSRF           CSRFConfig      `koanf:"csrf"`
	LoginRateLimit RateLimitConfig `koanf:"login_rate_limit"`
	CORSOrigins    []string        `koanf:"cors_origins"`
}

// UserConfig is one credential entry.
type UserConfig struct {
	Username string `koanf:"username" validate:"required,max=256"`

	// Password is plaintext or a bcrypt hash ($2a$/$2b$/$2y$).
	Password string `koanf:"password" validate:"required,max=1024"`
	Role     string `koanf:"role" validate:"omitempty,oneof=normal admin"`
	Disabled bool   `koanf:"disabled"`
	TrackGPS bool   `koanf:"track_gps"`
}

// CookieConfig holds authentication cookie settings.
type CookieConfig struct {
	Name string `koanf:"name" validate:"required,max=64"`

	// Key is the HMAC secret. Changing it invalidates every outstanding cookie.
	Key     string `koanf:"key"`
	TTLDays int    `koanf:"ttl_days" validate:"min=1,max=3650"`
	Secure  bool   `koanf:"secure"`
}

// LockoutConfig holds failed-login lockout policy.
type LockoutConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Threshold int           `koanf:"threshold" validate:"min=1,max=1000"`
	Window    time.Duration `koanf:"window"`
}

// CSRFConfig names the double-submit cookie and header.
type CSRFConfig struct {
	CookieName string `koanf:"cookie_name" validate:"required,max=64"`
	HeaderName string `koanf:"header_name" validate:"required,max=64"`
}

// RateLimitConfig is a per-IP request budget.
type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

// ProxyConfig holds upstream and outbound proxy settings.
type ProxyConfig struct {
	// UpstreamURL is the dashboard server protected by the gateway.
	UpstreamURL string `koanf:"upstream_url" validate:"required,url"`

	// Allowlist holds "host", "host:port" or URL entries external fetches may reach.
	Allowlist []string `koanf:"allowlist" validate:"dive,proxy_entry"`

	MaxTargetLength int           `koanf:"max_target_length" validate:"min=64,max=65536"`
	Timeout         time.Duration `koanf:"timeout"`
	Breaker         BreakerConfig `koanf:"breaker"`
	OutboundRPS     float64       `koanf:"outbound_rps" validate:"min=0"`
	OutboundBurst   int           `koanf:"outbound_burst" validate:"min=0"`
}

// BreakerConfig holds upstream circuit breaker settings.
type BreakerConfig struct {
	MaxFailures uint32        `koanf:"max_failures" validate:"min=1"`
	OpenTimeout time.Duration `koanf:"open_timeout"`
}

// SitemapsConfig holds sitemap visibility rules.
type SitemapsConfig struct {
	Visibility []visibility.Rule `koanf:"visibility" validate:"dive"`
}

// StorageConfig selects where lockout state and per-user settings live.
type StorageConfig struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend" validate:"oneof=memory badger"`

	// Path is the BadgerDB directory (required for badger).
	Path string `koanf:"path"`

	// GCInterval is how often Badger value-log GC and lockout sweeps run.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// LoggingConfig holds logging settings for zerolog.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// IsProduction returns true if the gateway runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
