// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(store LockoutStore) (*LockoutTracker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	config := &LockoutConfig{Threshold: 3, Window: 15 * time.Minute, Enabled: true}
	return NewLockoutTracker(store, config, clock.Now), clock
}

func TestLockoutTracker_LocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestTracker(NewMemoryLockoutStore())

	for i := 1; i <= 2; i++ {
		status, err := tracker.RecordFailure(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
		if status.Locked {
			t.Fatalf("locked after %d failures", i)
		}
	}

	status, err := tracker.RecordFailure(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	if !status.Locked {
		t.Fatal("expected lock after third failure")
	}
	if got := status.RemainingSeconds(); got != 900 {
		t.Errorf("RemainingSeconds() = %d, want 900", got)
	}

	clock.Advance(10 * time.Minute)
	status, err = tracker.Check(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !status.Locked || status.RemainingSeconds() != 300 {
		t.Errorf("Check() at +10m = %+v (remaining %d)", status, status.RemainingSeconds())
	}

	clock.Advance(5*time.Minute + time.Second)
	status, err = tracker.Check(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if status.Locked {
		t.Error("expected lock to expire after window")
	}
}

func TestLockoutTracker_FailureAfterExpiryStartsFresh(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestTracker(NewMemoryLockoutStore())

	for i := 0; i < 3; i++ {
		if _, err := tracker.RecordFailure(ctx, "k"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	clock.Advance(16 * time.Minute)

	status, err := tracker.RecordFailure(ctx, "k")
	if err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	if status.Locked || status.Failures != 1 {
		t.Errorf("status after expiry = %+v, want 1 failure unlocked", status)
	}
}

func TestLockoutTracker_SuccessResets(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(NewMemoryLockoutStore())

	for i := 0; i < 2; i++ {
		if _, err := tracker.RecordFailure(ctx, "k"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	if err := tracker.RecordSuccess(ctx, "k"); err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		status, err := tracker.RecordFailure(ctx, "k")
		if err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
		if status.Locked {
			t.Fatal("counter was not reset by success")
		}
	}
}

func TestLockoutTracker_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(NewMemoryLockoutStore())

	for i := 0; i < 3; i++ {
		if _, err := tracker.RecordFailure(ctx, "a"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	status, err := tracker.Check(ctx, "b")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if status.Locked {
		t.Error("key b should not be locked")
	}
}

func TestLockoutTracker_ConcurrentFailuresCountExactly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryLockoutStore()
	config := &LockoutConfig{Threshold: 1000, Window: time.Minute, Enabled: true}
	tracker := NewLockoutTracker(store, config, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.RecordFailure(ctx, "k"); err != nil {
				t.Errorf("RecordFailure() error = %v", err)
			}
		}()
	}
	wg.Wait()

	entry, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.FailureCount != 50 {
		t.Errorf("FailureCount = %d, want 50", entry.FailureCount)
	}
}

func TestLockoutTracker_OnLockoutAndLocked(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestTracker(NewMemoryLockoutStore())

	var fired []string
	tracker.SetOnLockout(func(e *LockoutEntry) { fired = append(fired, e.Key) })

	for i := 0; i < 4; i++ {
		if _, err := tracker.RecordFailure(ctx, "k"); err != nil {
			t.Fatalf("RecordFailure() error = %v", err)
		}
	}
	if len(fired) != 1 {
		t.Errorf("onLockout fired %d times, want 1", len(fired))
	}

	locked, err := tracker.Locked(ctx)
	if err != nil {
		t.Fatalf("Locked() error = %v", err)
	}
	if len(locked) != 1 || locked[0].Key != "k" {
		t.Errorf("Locked() = %+v", locked)
	}

	clock.Advance(time.Hour)
	removed, err := tracker.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
}

func TestLockoutTracker_Disabled(t *testing.T) {
	ctx := context.Background()
	tracker := NewLockoutTracker(NewMemoryLockoutStore(), &LockoutConfig{Threshold: 1, Window: time.Minute}, nil)

	status, err := tracker.RecordFailure(ctx, "k")
	if err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	if status.Locked {
		t.Error("disabled tracker must never lock")
	}
}

func TestWriteLockoutResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteLockoutResponse(rec, 42)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Retry-After = %q", got)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}

	var body struct {
		Error            string `json:"error"`
		LockedOut        bool   `json:"lockedOut"`
		RemainingSeconds int    `json:"remainingSeconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.LockedOut || body.RemainingSeconds != 42 || body.Error == "" {
		t.Errorf("body = %+v", body)
	}
}
