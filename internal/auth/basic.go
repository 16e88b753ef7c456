// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package auth

import (
	"encoding/base64"
	"errors"
	"strings"
)

// Basic authentication errors
var (
	// ErrNoCredentials indicates the request carried no Basic credentials.
	ErrNoCredentials = errors.New("no credentials")

	// ErrMalformedCredentials indicates an unparsable Authorization header.
	ErrMalformedCredentials = errors.New("malformed authorization header")

	// ErrInvalidCredentials indicates an unknown user, disabled user or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ParseBasicAuth extracts username and password from an Authorization header.
func ParseBasicAuth(authHeader string) (username, password string, err error) {
	if authHeader == "" {
		return "", "", ErrNoCredentials
	}

	const prefix = "Basic "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", "", ErrNoCredentials
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(authHeader[len(prefix):]))
	if err != nil {
		return "", "", ErrMalformedCredentials
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", ErrMalformedCredentials
	}
	return username, password, nil
}

// VerifyCredentials checks username and password against store.
// Unknown users still pay for a password comparison.
func VerifyCredentials(store CredentialStore, username, password string) (User, error) {
	user, found := store.Lookup(username)
	if !found {
		User{Password: "\x00"}.VerifyPassword(password)
		return User{}, ErrInvalidCredentials
	}
	if !user.VerifyPassword(password) || user.Disabled {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// BasicRealmHeader is the WWW-Authenticate value sent with 401 responses in basic mode.
const BasicRealmHeader = `Basic realm="HABGate", charset="UTF-8"`
