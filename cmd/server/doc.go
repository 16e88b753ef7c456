// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

/*
Package main is the entry point for the HABGate gateway.

HABGate sits in front of a home-automation dashboard server and decides, for
every request, whether it reaches the dashboard. It enforces a client subnet
gate, cookie or Basic authentication with failed-login lockout, CSRF checks,
an allowlist for server-side fetches and role-based sitemap visibility.

# Process Layout

	habgate (root supervisor)
	├── storage-layer
	│   └── storage-maintenance (lockout sweep, Badger value-log GC)
	└── api-layer
	    └── http-server

Startup order:

 1. Configuration: koanf (defaults, YAML file, environment)
 2. Logging: zerolog
 3. Storage: in-memory or BadgerDB for lockouts and per-user settings
 4. Gateway: credential store, cookie codec, lockout tracker, CSRF guard,
    proxy allowlist, visibility filter, authorization pipeline
 5. Upstream: reverse proxy with circuit breaker and outbound rate limit
 6. Router: chi with the pipeline as the innermost global middleware
 7. Supervisor tree: suture v4

# Configuration

The config file is found via CONFIG_PATH or the default paths
(./config.yaml, /etc/habgate/config.yaml). Environment variables override it:

	UPSTREAM_URL=http://openhab:8080
	ALLOW_SUBNETS=192.168.0.0/16,10.8.0.0/24
	COOKIE_KEY=$(openssl rand -base64 32)
	ADMIN_USERNAME=admin
	ADMIN_PASSWORD=...
	STORAGE_BACKEND=badger
	STORAGE_PATH=/data/habgate

Users and sitemap visibility rules are lists and normally live in the file.

# Reloading

SIGHUP, or a file change when WATCH_CONFIG=true, re-reads the config file and
swaps users, sitemap visibility rules and the cookie key. A file that fails
validation is ignored and the running settings stay in place. Changing the
cookie key signs everyone out.

# Signals

SIGINT and SIGTERM stop accepting connections and drain in-flight requests
for up to SHUTDOWN_TIMEOUT.
*/
package main
