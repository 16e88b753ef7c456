// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/habgate/internal/logging"
)

// LockoutConfig holds configuration for the failed-login lockout tracker.
type LockoutConfig struct {
	// Threshold is the number of consecutive failures that locks a key.
	Threshold int `json:"threshold"`

	// Window is how long a key stays locked once the threshold is reached.
	Window time.Duration `json:"window"`

	// Enabled controls whether lockout is active.
	Enabled bool `json:"enabled"`
}

// DefaultLockoutConfig returns the default policy: 3 failures, 15 minutes.
func DefaultLockoutConfig() *LockoutConfig {
	return &LockoutConfig{
		Threshold: 3,
		Window:    15 * time.Minute,
		Enabled:   true,
	}
}

// LockoutEntry tracks failures for one key (normally the client IP).
// LockedUntil is zero while the entry is still accumulating failures.
type LockoutEntry struct {
	Key           string    `json:"key"`
	FailureCount  int       `json:"failure_count"`
	LockedUntil   time.Time `json:"locked_until"`
	LastFailureAt time.Time `json:"last_failure_at"`
}

// LockedAt reports whether the entry is locked at instant now.
func (e *LockoutEntry) LockedAt(now time.Time) bool {
	return !e.LockedUntil.IsZero() && now.Before(e.LockedUntil)
}

// expiredAt reports whether a lock was applied and has since lapsed.
func (e *LockoutEntry) expiredAt(now time.Time) bool {
	return !e.LockedUntil.IsZero() && !now.Before(e.LockedUntil)
}

// LockoutStatus is the answer to "may this key attempt a login now?".
type LockoutStatus struct {
	Locked    bool
	Remaining time.Duration
	Failures  int
}

// RemainingSeconds rounds the remaining lock time up to whole seconds.
func (s LockoutStatus) RemainingSeconds() int {
	if !s.Locked || s.Remaining <= 0 {
		return 0
	}
	return int(math.Ceil(s.Remaining.Seconds()))
}

// ErrLockoutNotFound is returned when a lockout entry doesn't exist.
var ErrLockoutNotFound = errors.New("lockout entry not found")

// ErrAccountLocked is returned when authentication is blocked due to lockout.
var ErrAccountLocked = errors.New("too many failed attempts")

// LockoutStore defines the interface for lockout state persistence.
//
// Update must apply fn atomically with respect to other Update calls on the
// same key: fn receives a copy of the current entry (nil if absent) and
// returns the replacement (nil deletes the key).
type LockoutStore interface {
	Get(ctx context.Context, key string) (*LockoutEntry, error)
	Update(ctx context.Context, key string, fn func(current *LockoutEntry) *LockoutEntry) (*LockoutEntry, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]*LockoutEntry, error)
}

// LockoutTracker counts failed logins per key and locks keys that reach the
// threshold. Expired locks are discarded lazily on the next read.
type LockoutTracker struct {
	config *LockoutConfig
	store  LockoutStore
	now    func() time.Time

	mu        sync.RWMutex
	onLockout func(entry *LockoutEntry)
}

// NewLockoutTracker creates a tracker. now may be nil (defaults to time.Now).
func NewLockoutTracker(store LockoutStore, config *LockoutConfig, now func() time.Time) *LockoutTracker {
	if config == nil {
		config = DefaultLockoutConfig()
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultLockoutConfig().Threshold
	}
	if config.Window <= 0 {
		config.Window = DefaultLockoutConfig().Window
	}
	if now == nil {
		now = time.Now
	}
	return &LockoutTracker{
		config: config,
		store:  store,
		now:    now,
	}
}

// SetOnLockout sets a callback invoked synchronously when a key becomes locked.
func (t *LockoutTracker) SetOnLockout(fn func(entry *LockoutEntry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLockout = fn
}

// Config returns the tracker configuration.
func (t *LockoutTracker) Config() LockoutConfig {
	return *t.config
}

// Check reports whether key is currently locked. An expired entry is removed.
func (t *LockoutTracker) Check(ctx context.Context, key string) (LockoutStatus, error) {
	if !t.config.Enabled {
		return LockoutStatus{}, nil
	}

	entry, err := t.store.Get(ctx, key)
	if errors.Is(err, ErrLockoutNotFound) {
		return LockoutStatus{}, nil
	}
	if err != nil {
		return LockoutStatus{}, fmt.Errorf("check lockout: %w", err)
	}

	now := t.now()
	if entry.expiredAt(now) {
		if err := t.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrLockoutNotFound) {
			return LockoutStatus{}, fmt.Errorf("discard expired lockout: %w", err)
		}
		return LockoutStatus{}, nil
	}

	return statusOf(entry, now), nil
}

// RecordFailure adds one failure for key and returns the resulting status.
func (t *LockoutTracker) RecordFailure(ctx context.Context, key string) (LockoutStatus, error) {
	if !t.config.Enabled {
		return LockoutStatus{}, nil
	}

	now := t.now()
	justLocked := false

	entry, err := t.store.Update(ctx, key, func(current *LockoutEntry) *LockoutEntry {
		justLocked = false
		if current == nil || current.expiredAt(now) {
			current = &LockoutEntry{Key: key}
		}
		current.FailureCount++
		current.LastFailureAt = now
		if current.FailureCount >= t.config.Threshold && current.LockedUntil.IsZero() {
			current.LockedUntil = now.Add(t.config.Window)
			justLocked = true
		}
		return current
	})
	if err != nil {
		return LockoutStatus{}, fmt.Errorf("record failure: %w", err)
	}

	if justLocked {
		logging.Warn().
			Str("key", key).
			Int("failures", entry.FailureCount).
			Dur("window", t.config.Window).
			Msg("Login key locked")

		t.mu.RLock()
		onLockout := t.onLockout
		t.mu.RUnlock()
		if onLockout != nil {
			onLockout(copyEntry(entry))
		}
	}

	return statusOf(entry, now), nil
}

// RecordSuccess clears all lockout state for key.
func (t *LockoutTracker) RecordSuccess(ctx context.Context, key string) error {
	if !t.config.Enabled {
		return nil
	}
	if err := t.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrLockoutNotFound) {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}

// Clear removes a lockout on administrator request.
func (t *LockoutTracker) Clear(ctx context.Context, key string) error {
	if err := t.store.Delete(ctx, key); err != nil {
		return err
	}
	logging.Info().Str("key", key).Msg("Manually cleared lockout")
	return nil
}

// Locked returns all currently locked entries, soonest expiry first.
func (t *LockoutTracker) Locked(ctx context.Context) ([]*LockoutEntry, error) {
	entries, err := t.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lockouts: %w", err)
	}

	now := t.now()
	locked := make([]*LockoutEntry, 0, len(entries))
	for _, e := range entries {
		if e.LockedAt(now) {
			locked = append(locked, e)
		}
	}
	sort.Slice(locked, func(i, j int) bool {
		return locked[i].LockedUntil.Before(locked[j].LockedUntil)
	})
	return locked, nil
}

// Sweep deletes entries whose lock has expired. It returns the number removed.
// Accumulating entries are kept until a success clears them.
func (t *LockoutTracker) Sweep(ctx context.Context) (int, error) {
	entries, err := t.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list lockouts: %w", err)
	}

	now := t.now()
	removed := 0
	for _, e := range entries {
		if !e.expiredAt(now) {
			continue
		}
		if err := t.store.Delete(ctx, e.Key); err != nil && !errors.Is(err, ErrLockoutNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func statusOf(entry *LockoutEntry, now time.Time) LockoutStatus {
	status := LockoutStatus{Failures: entry.FailureCount}
	if entry.LockedAt(now) {
		status.Locked = true
		status.Remaining = entry.LockedUntil.Sub(now)
	}
	return status
}

// copyEntry creates a copy of a lockout entry.
func copyEntry(entry *LockoutEntry) *LockoutEntry {
	copied := *entry
	return &copied
}

// MemoryLockoutStore implements LockoutStore using in-memory storage.
// A single mutex covers the map, so Update is trivially atomic.
type MemoryLockoutStore struct {
	entries map[string]*LockoutEntry
	mu      sync.Mutex
}

// NewMemoryLockoutStore creates a new in-memory lockout store.
func NewMemoryLockoutStore() *MemoryLockoutStore {
	return &MemoryLockoutStore{
		entries: make(map[string]*LockoutEntry),
	}
}

// Get retrieves a lockout entry.
func (s *MemoryLockoutStore) Get(_ context.Context, key string) (*LockoutEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrLockoutNotFound
	}
	return copyEntry(entry), nil
}

// Update applies fn to the entry under the store lock.
func (s *MemoryLockoutStore) Update(_ context.Context, key string, fn func(*LockoutEntry) *LockoutEntry) (*LockoutEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *LockoutEntry
	if e, ok := s.entries[key]; ok {
		current = copyEntry(e)
	}

	next := fn(current)
	if next == nil {
		delete(s.entries, key)
		return nil, nil
	}
	next.Key = key
	s.entries[key] = copyEntry(next)
	return next, nil
}

// Delete removes a lockout entry.
func (s *MemoryLockoutStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return ErrLockoutNotFound
	}
	delete(s.entries, key)
	return nil
}

// List returns copies of all entries.
func (s *MemoryLockoutStore) List(_ context.Context) ([]*LockoutEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*LockoutEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, copyEntry(e))
	}
	return out, nil
}

// lockoutResponse is the 429 body clients use to show a countdown.
type lockoutResponse struct {
	Error            string `json:"error"`
	LockedOut        bool   `json:"lockedOut"`
	RemainingSeconds int    `json:"remainingSeconds"`
}

// WriteLockoutResponse writes the standard 429 lockout response.
func WriteLockoutResponse(w http.ResponseWriter, remainingSeconds int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(remainingSeconds))
	w.WriteHeader(http.StatusTooManyRequests)

	response := lockoutResponse{
		Error:            "Too many failed login attempts. Try again later.",
		LockedOut:        true,
		RemainingSeconds: remainingSeconds,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.Error().Err(err).Msg("Error encoding lockout response")
	}
}
