// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const lockoutKeyPrefix = "lockout:"

// maxLockoutTxnRetries bounds retries of a conflicting read-modify-write.
const maxLockoutTxnRetries = 8

// BadgerLockoutStore implements LockoutStore on BadgerDB so lockouts survive
// restarts. Update runs inside a read-write transaction; conflicting
// transactions are retried.
type BadgerLockoutStore struct {
	db *badger.DB
}

// NewBadgerLockoutStore creates a new BadgerDB-backed lockout store.
func NewBadgerLockoutStore(db *badger.DB) *BadgerLockoutStore {
	return &BadgerLockoutStore{db: db}
}

func lockoutKey(key string) []byte {
	return []byte(lockoutKeyPrefix + key)
}

// lockoutEntry expires a locked record with its lock. The remaining time is
// measured on the tracker's clock and rounded up to Badger's one-second
// resolution. Unlocked records keep counting and carry no TTL.
func lockoutEntry(key string, data []byte, e *LockoutEntry) *badger.Entry {
	entry := badger.NewEntry(lockoutKey(key), data)
	if e.LockedUntil.IsZero() {
		return entry
	}
	if remaining := e.LockedUntil.Sub(e.LastFailureAt); remaining > 0 {
		entry = entry.WithTTL(remaining.Truncate(time.Second) + time.Second)
	}
	return entry
}

// Get retrieves a lockout entry.
func (s *BadgerLockoutStore) Get(_ context.Context, key string) (*LockoutEntry, error) {
	var entry LockoutEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lockoutKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrLockoutNotFound
		}
		if err != nil {
			return fmt.Errorf("get lockout: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Update applies fn inside a transaction.
func (s *BadgerLockoutStore) Update(ctx context.Context, key string, fn func(*LockoutEntry) *LockoutEntry) (*LockoutEntry, error) {
	for attempt := 0; attempt < maxLockoutTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var result *LockoutEntry
		err := s.db.Update(func(txn *badger.Txn) error {
			var current *LockoutEntry
			item, err := txn.Get(lockoutKey(key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return fmt.Errorf("get lockout: %w", err)
			default:
				current = &LockoutEntry{}
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, current)
				}); err != nil {
					return fmt.Errorf("unmarshal lockout: %w", err)
				}
			}

			next := fn(current)
			if next == nil {
				result = nil
				if current == nil {
					return nil
				}
				return txn.Delete(lockoutKey(key))
			}

			next.Key = key
			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("marshal lockout: %w", err)
			}
			result = next
			return txn.SetEntry(lockoutEntry(key, data, next))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("update lockout %q: %w", key, badger.ErrConflict)
}

// Delete removes a lockout entry.
func (s *BadgerLockoutStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(lockoutKey(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrLockoutNotFound
			}
			return err
		}
		return txn.Delete(lockoutKey(key))
	})
}

// List returns all stored lockout entries.
func (s *BadgerLockoutStore) List(_ context.Context) ([]*LockoutEntry, error) {
	var entries []*LockoutEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(lockoutKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry LockoutEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return fmt.Errorf("unmarshal lockout: %w", err)
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	return entries, err
}
