// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package main

import (
	"fmt"
	"sync"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/config"
	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/visibility"
)

// reloader re-reads the config file and swaps the hot-reloadable parts:
// users, sitemap visibility rules and the cookie key. Everything else needs
// a restart.
type reloader struct {
	path   string
	secret *auth.RotatingSecret
	users  *auth.StaticCredentialStore
	filter *visibility.Filter

	mu      sync.Mutex
	lastKey string
}

func newReloader(path string, cfg *config.Config, g *gatewayApp) *reloader {
	return &reloader{
		path:    path,
		secret:  g.secret,
		users:   g.users,
		filter:  g.filter,
		lastKey: cfg.Security.Cookie.Key,
	}
}

// Reload applies the file's current contents. Nothing is swapped unless the
// whole file loads and validates.
func (r *reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, _, err := config.LoadFrom(r.path)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	rules := cfg.Sitemaps.Visibility
	if _, err := visibility.NewFilter(rules); err != nil {
		return fmt.Errorf("reload visibility rules: %w", err)
	}
	users := cfg.AuthUsers()
	if _, err := auth.NewStaticCredentialStore(users); err != nil {
		return fmt.Errorf("reload users: %w", err)
	}

	if err := r.filter.Replace(rules); err != nil {
		return fmt.Errorf("apply visibility rules: %w", err)
	}
	if err := r.users.Replace(users); err != nil {
		return fmt.Errorf("apply users: %w", err)
	}

	rotated := cfg.Security.Cookie.Key != r.lastKey
	if rotated {
		r.secret.Rotate(cfg.Security.Cookie.Key)
		r.lastKey = cfg.Security.Cookie.Key
	}

	logging.Info().
		Int("users", len(users)).
		Int("visibility_rules", len(rules)).
		Bool("cookie_key_rotated", rotated).
		Msg("Configuration reloaded")
	return nil
}
