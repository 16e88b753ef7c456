// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/logging"
)

// DefaultMaintenanceInterval is used when no interval is configured.
const DefaultMaintenanceInterval = 5 * time.Minute

// DefaultGCDiscardRatio is the value-log discard ratio passed to Badger.
const DefaultGCDiscardRatio = 0.5

// MaintenanceTask is one periodic housekeeping step.
type MaintenanceTask struct {
	Name string
	Run  func(ctx context.Context) error
}

// MaintenanceService runs its tasks on a fixed interval. A failing task is
// logged and retried on the next tick; it never restarts the service.
type MaintenanceService struct {
	interval time.Duration
	tasks    []MaintenanceTask
	name     string
}

// NewMaintenanceService creates the service. A non-positive interval uses
// DefaultMaintenanceInterval.
func NewMaintenanceService(interval time.Duration, tasks ...MaintenanceTask) *MaintenanceService {
	if interval <= 0 {
		interval = DefaultMaintenanceInterval
	}
	return &MaintenanceService{
		interval: interval,
		tasks:    tasks,
		name:     "storage-maintenance",
	}
}

// Serve implements suture.Service.
func (s *MaintenanceService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task once, in order.
func (s *MaintenanceService) RunOnce(ctx context.Context) {
	for _, task := range s.tasks {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := task.Run(ctx); err != nil {
			logging.Warn().Err(err).Str("task", task.Name).Msg("Maintenance task failed")
			continue
		}
		logging.Debug().Str("task", task.Name).Dur("duration", time.Since(start)).Msg("Maintenance task completed")
	}
}

// String names the service in suture events.
func (s *MaintenanceService) String() string {
	return s.name
}

// LockoutSweepTask deletes lockout entries whose lock has expired.
func LockoutSweepTask(tracker *auth.LockoutTracker) MaintenanceTask {
	return MaintenanceTask{
		Name: "lockout-sweep",
		Run: func(ctx context.Context) error {
			removed, err := tracker.Sweep(ctx)
			if err != nil {
				return err
			}
			if removed > 0 {
				logging.Info().Int("removed", removed).Msg("Expired lockouts swept")
			}
			return nil
		},
	}
}

// BadgerGCTask rewrites value-log files until Badger reports nothing left
// to reclaim.
func BadgerGCTask(db *badger.DB, discardRatio float64) MaintenanceTask {
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = DefaultGCDiscardRatio
	}
	return MaintenanceTask{
		Name: "badger-gc",
		Run: func(ctx context.Context) error {
			for ctx.Err() == nil {
				err := db.RunValueLogGC(discardRatio)
				if errors.Is(err, badger.ErrNoRewrite) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("run value log GC: %w", err)
				}
			}
			return ctx.Err()
		},
	}
}
