// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

// Package visibility decides which sitemaps a caller's role may see and
// guards the persisted "selected sitemap" setting.
package visibility

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/goccy/go-json"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/logging"
)

//go:embed model.conf
var embeddedModel string

const actionView = "view"

// Visibility is the audience of a sitemap.
type Visibility string

const (
	// All makes a sitemap visible to every authenticated role.
	All Visibility = "all"

	// Normal is equivalent to All; both roles see it.
	Normal Visibility = "normal"

	// Admin hides a sitemap from non-admin callers.
	Admin Visibility = "admin"
)

// ParseVisibility converts a configured value. Empty means All.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(s))) {
	case "", All:
		return All, nil
	case Normal:
		return Normal, nil
	case Admin:
		return Admin, nil
	default:
		return "", fmt.Errorf("invalid visibility %q", s)
	}
}

// Rule assigns a visibility to one sitemap.
type Rule struct {
	Name       string     `koanf:"name" validate:"required,sitemap_name"`
	Visibility Visibility `koanf:"visibility" validate:"omitempty,oneof=all normal admin"`
}

// ErrForbidden is returned when a caller's role may not see a sitemap.
var ErrForbidden = errors.New("sitemap not visible to role")

// RoleOf maps an authorization result to the role used for filtering.
// Only an authenticated admin is treated as admin.
func RoleOf(authenticated bool, role auth.Role) auth.Role {
	if authenticated && role == auth.RoleAdmin {
		return auth.RoleAdmin
	}
	return auth.RoleNormal
}

// ruleSet is an immutable snapshot of the configured rules.
type ruleSet struct {
	known    map[string]Visibility
	enforcer *casbin.SyncedEnforcer
}

// Filter answers visibility questions. Rules can be swapped at runtime.
type Filter struct {
	current atomic.Pointer[ruleSet]
}

// NewFilter builds a filter from rules.
func NewFilter(rules []Rule) (*Filter, error) {
	f := &Filter{}
	if err := f.Replace(rules); err != nil {
		return nil, err
	}
	return f, nil
}

// Replace swaps the rule set. On error the previous rules stay active.
func (f *Filter) Replace(rules []Rule) error {
	set, err := buildRuleSet(rules)
	if err != nil {
		return err
	}
	f.current.Store(set)
	return nil
}

func buildRuleSet(rules []Rule) (*ruleSet, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if _, err := enforcer.AddGroupingPolicy(string(auth.RoleAdmin), string(auth.RoleNormal)); err != nil {
		return nil, fmt.Errorf("failed to add role hierarchy: %w", err)
	}

	known := make(map[string]Visibility, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, errors.New("visibility rule without sitemap name")
		}
		v, err := ParseVisibility(string(r.Visibility))
		if err != nil {
			return nil, fmt.Errorf("sitemap %q: %w", r.Name, err)
		}
		if _, dup := known[r.Name]; dup {
			return nil, fmt.Errorf("duplicate visibility rule for sitemap %q", r.Name)
		}
		known[r.Name] = v

		subject := string(auth.RoleNormal)
		if v == Admin {
			subject = string(auth.RoleAdmin)
		}
		if _, err := enforcer.AddPolicy(subject, r.Name, actionView); err != nil {
			return nil, fmt.Errorf("failed to add policy for %q: %w", r.Name, err)
		}
	}

	return &ruleSet{known: known, enforcer: enforcer}, nil
}

// Rule returns the configured visibility for name, or All when unset.
func (f *Filter) Rule(name string) Visibility {
	if v, ok := f.current.Load().known[name]; ok {
		return v
	}
	return All
}

// IsSitemapVisible reports whether role may see the sitemap called name.
// Sitemaps without a rule are visible to everyone.
func (f *Filter) IsSitemapVisible(name string, role auth.Role) bool {
	set := f.current.Load()
	if _, ok := set.known[name]; !ok {
		return true
	}

	allowed, err := set.enforcer.Enforce(string(role), name, actionView)
	if err != nil {
		logging.Error().Err(err).Str("sitemap", name).Msg("Visibility enforcement failed")
		return false
	}
	return allowed
}

// FilterNames returns the subset of names visible to role, preserving order.
func (f *Filter) FilterNames(names []string, role auth.Role) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if f.IsSitemapVisible(n, role) {
			out = append(out, n)
		}
	}
	return out
}

// sitemapRef is the only part of a sitemap list item the filter reads.
type sitemapRef struct {
	Name string `json:"name"`
}

// FilterListPayload removes sitemaps invisible to role from a JSON array of
// sitemap objects (the /rest/sitemaps response). Remaining items are passed
// through byte-for-byte. Items without a name are dropped.
func (f *Filter) FilterListPayload(payload []byte, role auth.Role) ([]byte, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("decode sitemap list: %w", err)
	}

	kept := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		var ref sitemapRef
		if err := json.Unmarshal(item, &ref); err != nil || ref.Name == "" {
			continue
		}
		if f.IsSitemapVisible(ref.Name, role) {
			kept = append(kept, item)
		}
	}

	out, err := json.Marshal(kept)
	if err != nil {
		return nil, fmt.Errorf("encode sitemap list: %w", err)
	}
	return out, nil
}
