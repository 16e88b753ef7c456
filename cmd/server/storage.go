// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package main

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/config"
	"github.com/tomtom215/habgate/internal/supervisor/services"
	"github.com/tomtom215/habgate/internal/visibility"
)

// stores holds the lockout and settings backends. db is nil for the memory
// backend.
type stores struct {
	db       *badger.DB
	lockout  auth.LockoutStore
	settings visibility.SettingsStore
}

// openStores opens the configured backend. Both stores share one Badger DB.
func openStores(cfg config.StorageConfig) (*stores, error) {
	if cfg.Backend != "badger" {
		return &stores{
			lockout:  auth.NewMemoryLockoutStore(),
			settings: visibility.NewMemorySettingsStore(),
		}, nil
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil // badger's own logger is noisy at info

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db at %s: %w", cfg.Path, err)
	}
	return &stores{
		db:       db,
		lockout:  auth.NewBadgerLockoutStore(db),
		settings: visibility.NewBadgerSettingsStore(db),
	}, nil
}

// maintenanceTasks returns the periodic housekeeping for these stores.
func (s *stores) maintenanceTasks(tracker *auth.LockoutTracker) []services.MaintenanceTask {
	tasks := []services.MaintenanceTask{services.LockoutSweepTask(tracker)}
	if s.db != nil {
		tasks = append(tasks, services.BadgerGCTask(s.db, services.DefaultGCDiscardRatio))
	}
	return tasks
}

// Close closes the Badger DB if one was opened.
func (s *stores) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
