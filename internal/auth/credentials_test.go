// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestUser_VerifyPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}

	plain := User{Username: "a", Password: "hunter2"}
	hashed := User{Username: "b", Password: string(hash)}

	if !plain.VerifyPassword("hunter2") || plain.VerifyPassword("hunter3") {
		t.Error("plain password verification wrong")
	}
	if !hashed.VerifyPassword("hunter2") || hashed.VerifyPassword(string(hash)) {
		t.Error("bcrypt password verification wrong")
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"": RoleNormal, "normal": RoleNormal, "ADMIN": RoleAdmin} {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Errorf("ParseRole(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseRole("root"); err == nil {
		t.Error("ParseRole(root) should fail")
	}
}

func TestStaticCredentialStore_Replace(t *testing.T) {
	store, err := NewStaticCredentialStore([]User{{Username: "a", Password: "1"}})
	if err != nil {
		t.Fatalf("NewStaticCredentialStore() error = %v", err)
	}

	err = store.Replace([]User{{Username: "x"}, {Username: "x"}})
	if !errors.Is(err, ErrDuplicateUser) {
		t.Errorf("Replace() duplicate error = %v", err)
	}
	if _, ok := store.Lookup("a"); !ok {
		t.Error("failed Replace must keep previous users")
	}

	if err := store.Replace([]User{{Username: "b", Password: "2"}}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	u, ok := store.Lookup("b")
	if !ok || u.Role != RoleNormal {
		t.Errorf("Lookup(b) = %+v, %v", u, ok)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d", store.Len())
	}
}
