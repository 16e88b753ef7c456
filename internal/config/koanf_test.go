// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/habgate/internal/visibility"
)

const sampleYAML = `
server:
  port: 9000
security:
  auth_mode: basic
  allow_subnets: ["192.168.0.0/16", "10.8.0.1"]
  lan_subnets: ["192.168.0.0/16"]
  cookie:
    key: "yaml-secret-0123456789"
    ttl_days: 30
  lockout:
    threshold: 5
    window: 10m
  users:
    - username: alice
      password: pw
      role: admin
    - username: kid
      password: pw2
      disabled: true
proxy:
  upstream_url: http://openhab.local:8080
  allowlist: ["camera.local:554", "https://weather.example.com"]
sitemaps:
  visibility:
    - name: ops
      visibility: admin
    - name: kids
      visibility: normal
`

func TestLoadFrom_YAMLFile(t *testing.T) {
	path := writeConfigFile(t, sampleYAML)

	cfg, used, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if used != path {
		t.Errorf("path = %q, want %q", used, path)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Security.AuthMode != "basic" {
		t.Errorf("AuthMode = %q", cfg.Security.AuthMode)
	}
	if len(cfg.Security.AllowSubnets) != 2 || cfg.Security.AllowSubnets[1] != "10.8.0.1" {
		t.Errorf("AllowSubnets = %v", cfg.Security.AllowSubnets)
	}
	if cfg.Security.Cookie.TTLDays != 30 || cfg.Security.Cookie.Name != "AuthStore" {
		t.Errorf("Cookie = %+v", cfg.Security.Cookie)
	}
	if cfg.Security.Lockout.Threshold != 5 || cfg.Security.Lockout.Window != 10*time.Minute || !cfg.Security.Lockout.Enabled {
		t.Errorf("Lockout = %+v", cfg.Security.Lockout)
	}
	if len(cfg.Security.Users) != 2 || !cfg.Security.Users[1].Disabled || cfg.Security.Users[0].Role != "admin" {
		t.Errorf("Users = %+v", cfg.Security.Users)
	}
	if len(cfg.Proxy.Allowlist) != 2 {
		t.Errorf("Allowlist = %v", cfg.Proxy.Allowlist)
	}
	if len(cfg.Sitemaps.Visibility) != 2 || cfg.Sitemaps.Visibility[0].Visibility != visibility.Admin {
		t.Errorf("Visibility = %+v", cfg.Sitemaps.Visibility)
	}
}

func TestLoadFrom_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, sampleYAML)

	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("AUTH_MODE", "html")
	t.Setenv("ALLOW_SUBNETS", "0.0.0.0")
	t.Setenv("PROXY_ALLOWLIST", " camera.local:554 , nas.local ")
	t.Setenv("COOKIE_KEY", "env-secret-abcdefghijkl")
	t.Setenv("LOCKOUT_WINDOW", "1h")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, _, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Security.AuthMode != "html" {
		t.Errorf("AuthMode = %q, want html", cfg.Security.AuthMode)
	}
	if len(cfg.Security.AllowSubnets) != 1 || cfg.Security.AllowSubnets[0] != "0.0.0.0" {
		t.Errorf("AllowSubnets = %v", cfg.Security.AllowSubnets)
	}
	if strings.Join(cfg.Proxy.Allowlist, ",") != "camera.local:554,nas.local" {
		t.Errorf("Allowlist = %v", cfg.Proxy.Allowlist)
	}
	if cfg.Security.Cookie.Key != "env-secret-abcdefghijkl" {
		t.Errorf("Cookie.Key not overridden")
	}
	if cfg.Security.Lockout.Window != time.Hour {
		t.Errorf("Lockout.Window = %v, want 1h", cfg.Security.Lockout.Window)
	}
}

func TestLoadFrom_EnvOnly(t *testing.T) {
	t.Setenv("COOKIE_KEY", "env-secret-abcdefghijkl")
	t.Setenv("ADMIN_USERNAME", "root")
	t.Setenv("ADMIN_PASSWORD", "rootpw")

	cfg, used, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if used != "" {
		t.Errorf("path = %q, want empty", used)
	}
	users := cfg.AuthUsers()
	if len(users) != 1 || users[0].Username != "root" {
		t.Errorf("AuthUsers() = %+v", users)
	}
}

func TestLoadFrom_InvalidFile(t *testing.T) {
	path := writeConfigFile(t, "security: [unclosed")
	if _, _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() with malformed YAML: error = nil")
	}

	path = writeConfigFile(t, "security:\n  cookie:\n    key: short\n  users:\n    - username: a\n      password: b\n")
	_, _, err := LoadFrom(path)
	if err == nil || !strings.Contains(err.Error(), "COOKIE_KEY") {
		t.Errorf("LoadFrom() error = %v, want COOKIE_KEY validation failure", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"LAN_BYPASS":        "security.lan_bypass",
		"cookie_ttl_days":   "security.cookie.ttl_days",
		"UPSTREAM_URL":      "proxy.upstream_url",
		"LOG_LEVEL":         "logging.level",
		"PATH":              "",
		"HOME":              "",
		"SECURITY_AUTHMODE": "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
