// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package visibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const settingsKeyPrefix = "settings:"

// userSettings is the persisted record per user.
type userSettings struct {
	SelectedSitemap string    `json:"selected_sitemap"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BadgerSettingsStore implements SettingsStore using BadgerDB.
type BadgerSettingsStore struct {
	db *badger.DB
}

// NewBadgerSettingsStore creates a BadgerDB-backed settings store.
func NewBadgerSettingsStore(db *badger.DB) *BadgerSettingsStore {
	return &BadgerSettingsStore{db: db}
}

// GetSelectedSitemap implements SettingsStore.
func (s *BadgerSettingsStore) GetSelectedSitemap(_ context.Context, username string) (string, error) {
	var rec userSettings
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(settingsKeyPrefix + username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSettingNotFound
		}
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return "", err
	}
	if rec.SelectedSitemap == "" {
		return "", ErrSettingNotFound
	}
	return rec.SelectedSitemap, nil
}

// PutSelectedSitemap implements SettingsStore.
func (s *BadgerSettingsStore) PutSelectedSitemap(_ context.Context, username, sitemap string) error {
	data, err := json.Marshal(userSettings{SelectedSitemap: sitemap, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(settingsKeyPrefix+username), data)
	})
}
