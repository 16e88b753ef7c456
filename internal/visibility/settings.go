// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package visibility

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/habgate/internal/auth"
)

// ErrSettingNotFound is returned when a user has no stored selection.
var ErrSettingNotFound = errors.New("setting not found")

// SettingsStore persists per-user dashboard settings.
type SettingsStore interface {
	GetSelectedSitemap(ctx context.Context, username string) (string, error)
	PutSelectedSitemap(ctx context.Context, username, sitemap string) error
}

// MemorySettingsStore keeps settings in a map; they are lost on restart.
type MemorySettingsStore struct {
	mu       sync.RWMutex
	selected map[string]string
}

// NewMemorySettingsStore creates an empty in-memory store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{selected: make(map[string]string)}
}

// GetSelectedSitemap implements SettingsStore.
func (s *MemorySettingsStore) GetSelectedSitemap(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.selected[username]
	if !ok {
		return "", ErrSettingNotFound
	}
	return v, nil
}

// PutSelectedSitemap implements SettingsStore.
func (s *MemorySettingsStore) PutSelectedSitemap(_ context.Context, username, sitemap string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected[username] = sitemap
	return nil
}

// Settings applies visibility rules to reads and writes of stored settings.
type Settings struct {
	filter *Filter
	store  SettingsStore
}

// NewSettings creates a guarded settings service.
func NewSettings(filter *Filter, store SettingsStore) *Settings {
	return &Settings{filter: filter, store: store}
}

// SelectedSitemap returns the user's selection. A stored selection that the
// role can no longer see (rules changed) is reported as not found.
func (s *Settings) SelectedSitemap(ctx context.Context, username string, role auth.Role) (string, error) {
	name, err := s.store.GetSelectedSitemap(ctx, username)
	if err != nil {
		return "", err
	}
	if !s.filter.IsSitemapVisible(name, role) {
		return "", ErrSettingNotFound
	}
	return name, nil
}

// SetSelectedSitemap stores the selection, or returns ErrForbidden without
// writing when role may not see the sitemap.
func (s *Settings) SetSelectedSitemap(ctx context.Context, username string, role auth.Role, sitemap string) error {
	if !s.filter.IsSitemapVisible(sitemap, role) {
		return fmt.Errorf("%w: %q", ErrForbidden, sitemap)
	}
	if err := s.store.PutSelectedSitemap(ctx, username, sitemap); err != nil {
		return fmt.Errorf("store selected sitemap: %w", err)
	}
	return nil
}
