// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Role is the coarse authorization level of a gateway user.
type Role string

const (
	// RoleNormal can use the dashboard and every sitemap not marked admin.
	RoleNormal Role = "normal"

	// RoleAdmin can additionally see admin-only sitemaps and lockout state.
	RoleAdmin Role = "admin"
)

// ParseRole converts a configured role name. An empty string means normal.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return RoleNormal, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// String returns the string representation of Role.
func (r Role) String() string {
	return string(r)
}

// User is one entry of the credential store.
//
// Password is either a plain secret or a bcrypt hash ("$2a$", "$2b$", "$2y$").
// Whatever is stored is also folded into the cookie signature, so changing it
// invalidates every outstanding cookie for that user.
type User struct {
	Username string
	Password string
	Role     Role
	Disabled bool
	TrackGPS bool
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// VerifyPassword checks candidate against the stored password.
// Plain passwords are compared as SHA-256 digests so the comparison time
// does not depend on either length.
func (u User) VerifyPassword(candidate string) bool {
	if isBcryptHash(u.Password) {
		return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate)) == nil
	}
	want := sha256.Sum256([]byte(u.Password))
	got := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// CredentialStore resolves usernames to users. Usernames are case-sensitive.
type CredentialStore interface {
	// Lookup returns the user and true, or the zero User and false.
	Lookup(username string) (User, bool)
}

// Credential store errors
var (
	// ErrDuplicateUser indicates two entries share a username.
	ErrDuplicateUser = errors.New("duplicate username")

	// ErrEmptyUsername indicates an entry without a username.
	ErrEmptyUsername = errors.New("username is required")
)

// StaticCredentialStore is an in-memory CredentialStore loaded from configuration.
// Replace swaps the whole user set atomically on config reload.
type StaticCredentialStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewStaticCredentialStore builds a store from users, rejecting duplicates.
func NewStaticCredentialStore(users []User) (*StaticCredentialStore, error) {
	s := &StaticCredentialStore{}
	if err := s.Replace(users); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace swaps the user set. On error the previous set is kept.
func (s *StaticCredentialStore) Replace(users []User) error {
	next := make(map[string]User, len(users))
	for _, u := range users {
		if u.Username == "" {
			return ErrEmptyUsername
		}
		if _, exists := next[u.Username]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateUser, u.Username)
		}
		if u.Role == "" {
			u.Role = RoleNormal
		}
		next[u.Username] = u
	}

	s.mu.Lock()
	s.users = next
	s.mu.Unlock()
	return nil
}

// Lookup implements CredentialStore.
func (s *StaticCredentialStore) Lookup(username string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	return u, ok
}

// Len returns the number of configured users.
func (s *StaticCredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
