// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

/*
Package config loads and validates HABGate configuration.

# Configuration Sources

Koanf v2 merges three layers, later layers winning:
  - Built-in defaults (defaultConfig)
  - An optional YAML file: $CONFIG_PATH, ./config.yaml or /etc/habgate/config.yaml
  - Mapped environment variables (see envMappings)

# Example config.yaml

	security:
	  auth_mode: html
	  allow_subnets: ["192.168.0.0/16", "10.8.0.0/24"]
	  lan_subnets: ["192.168.0.0/16"]
	  cookie:
	    key: "change-me-to-a-long-random-string"
	    secure: true
	  users:
	    - username: alice
	      password: "$2b$10$..."
	      role: admin
	    - username: kid
	      password: hunter22
	proxy:
	  upstream_url: http://127.0.0.1:8080
	  allowlist: ["camera.local:554", "https://weather.example.com"]
	sitemaps:
	  visibility:
	    - name: ops
	      visibility: admin
	storage:
	  backend: badger
	  path: /data/habgate

# Validation

Struct tags are checked with the shared validator (custom cidr_entry,
proxy_entry and sitemap_name tags), followed by cross-field rules such as
duplicate users, cookie key length and production-only restrictions.
*/
package config
