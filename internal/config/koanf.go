// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/habgate/config.yaml",
	"/etc/habgate/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8443,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			AuthMode:       "html",
			AllowSubnets:   []string{"0.0.0.0"},
			LanSubnets:     []string{},
			TrustedProxies: []string{},
			Cookie: CookieConfig{
				Name:    "AuthStore",
				TTLDays: 14,
				Secure:  false,
			},
			Lockout: LockoutConfig{
				Enabled:   true,
				Threshold: 3,
				Window:    15 * time.Minute,
			},
			CSRF: CSRFConfig{
				CookieName: "ohCSRF",
				HeaderName: "X-CSRF-Token",
			},
			LoginRateLimit: RateLimitConfig{
				Enabled:  true,
				Requests: 20,
				Window:   time.Minute,
			},
			CORSOrigins: []string{},
		},
		Proxy: ProxyConfig{
			UpstreamURL:     "http://127.0.0.1:8080",
			Allowlist:       []string{},
			MaxTargetLength: 2048,
			Timeout:         30 * time.Second,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
			OutboundRPS:   50,
			OutboundBurst: 100,
		},
		Storage: StorageConfig{
			Backend:    "memory",
			Path:       "/data/habgate",
			GCInterval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
func Load() (*Config, error) {
	cfg, _, err := LoadFrom(FindConfigFile())
	return cfg, err
}

// LoadFrom loads configuration using path as the config file (empty for none)
// and returns the path actually used.
func LoadFrom(path string) (*Config, string, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// ALLOW_SUBNETS -> security.allow_subnets, UPSTREAM_URL -> proxy.upstream_url
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, "", fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, path, nil
}

// FindConfigFile searches CONFIG_PATH and then the default paths.
// Returns the path to the first file found, or empty string if none found.
func FindConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.allow_subnets",
	"security.lan_subnets",
	"security.trusted_proxies",
	"security.cors_origins",
	"proxy.allowlist",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		// An explicitly empty variable clears the list (ALLOW_SUBNETS= denies everyone).
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"http_host":        "server.host",
	"http_port":        "server.port",
	"http_timeout":     "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",
	"watch_config":     "server.watch_config",

	"auth_mode":       "security.auth_mode",
	"allow_subnets":   "security.allow_subnets",
	"lan_subnets":     "security.lan_subnets",
	"lan_bypass":      "security.lan_bypass",
	"trusted_proxies": "security.trusted_proxies",
	"admin_username":  "security.admin_username",
	"admin_password":  "security.admin_password",
	"cors_origins":    "security.cors_origins",

	"cookie_name":     "security.cookie.name",
	"cookie_key":      "security.cookie.key",
	"cookie_ttl_days": "security.cookie.ttl_days",
	"cookie_secure":   "security.cookie.secure",

	"lockout_enabled":   "security.lockout.enabled",
	"lockout_threshold": "security.lockout.threshold",
	"lockout_window":    "security.lockout.window",

	"csrf_cookie_name": "security.csrf.cookie_name",
	"csrf_header_name": "security.csrf.header_name",

	"login_rate_limit_enabled":  "security.login_rate_limit.enabled",
	"login_rate_limit_requests": "security.login_rate_limit.requests",
	"login_rate_limit_window":   "security.login_rate_limit.window",

	"upstream_url":            "proxy.upstream_url",
	"proxy_allowlist":         "proxy.allowlist",
	"proxy_max_target_length": "proxy.max_target_length",
	"proxy_timeout":           "proxy.timeout",
	"proxy_breaker_failures":  "proxy.breaker.max_failures",
	"proxy_breaker_timeout":   "proxy.breaker.open_timeout",
	"proxy_outbound_rps":      "proxy.outbound_rps",
	"proxy_outbound_burst":    "proxy.outbound_burst",

	"storage_backend":     "storage.backend",
	"storage_path":        "storage.path",
	"storage_gc_interval": "storage.gc_interval",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables are skipped so unrelated environment does not leak into config.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// WatchConfigFile calls callback whenever the file at path changes.
// The caller is responsible for reloading and swapping configuration safely.
func WatchConfigFile(path string, callback func()) (*file.File, error) {
	provider := file.Provider(path)
	err := provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
	if err != nil {
		return nil, err
	}
	return provider, nil
}
