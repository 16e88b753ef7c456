// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
)

// CSRF protection errors
var (
	// ErrCSRFTokenMissing indicates the cookie or the header was absent or empty.
	ErrCSRFTokenMissing = errors.New("CSRF token missing")

	// ErrCSRFTokenInvalid indicates the cookie and header tokens differ.
	ErrCSRFTokenInvalid = errors.New("CSRF token invalid")
)

// csrfTokenBytes is the entropy of an issued token; it is hex encoded to 64 chars.
const csrfTokenBytes = 32

// CSRFConfig holds configuration for the double-submit CSRF guard.
type CSRFConfig struct {
	// CookieName is the name of the CSRF cookie (default: "ohCSRF").
	CookieName string

	// HeaderName is the request header echoing the token (default: "X-CSRF-Token").
	HeaderName string

	// CookieSecure sets the Secure flag on the cookie.
	CookieSecure bool
}

// DefaultCSRFConfig returns the default cookie and header names.
func DefaultCSRFConfig() *CSRFConfig {
	return &CSRFConfig{
		CookieName: "ohCSRF",
		HeaderName: "X-CSRF-Token",
	}
}

// CSRFGuard implements the stateless double-submit cookie pattern: a request
// is accepted when the token in the cookie equals the token in the header.
// No server-side token state is kept.
type CSRFGuard struct {
	config *CSRFConfig
}

// NewCSRFGuard creates a guard, filling in default names.
func NewCSRFGuard(config *CSRFConfig) *CSRFGuard {
	if config == nil {
		config = DefaultCSRFConfig()
	}
	if config.CookieName == "" {
		config.CookieName = "ohCSRF"
	}
	if config.HeaderName == "" {
		config.HeaderName = "X-CSRF-Token"
	}
	return &CSRFGuard{config: config}
}

// CookieName returns the CSRF cookie name.
func (g *CSRFGuard) CookieName() string { return g.config.CookieName }

// HeaderName returns the CSRF header name.
func (g *CSRFGuard) HeaderName() string { return g.config.HeaderName }

// IssueToken returns a fresh token: 32 random bytes, lowercase hex.
func IssueToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidateTokens compares the cookie and header tokens in constant time.
// Empty values and length mismatches fail.
func ValidateTokens(cookieToken, headerToken string) error {
	if cookieToken == "" || headerToken == "" {
		return ErrCSRFTokenMissing
	}
	if len(cookieToken) != len(headerToken) {
		return ErrCSRFTokenInvalid
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return ErrCSRFTokenInvalid
	}
	return nil
}

// Issue generates a token and sets it as a session cookie readable by page
// scripts: Path=/; SameSite=Strict; not HttpOnly.
func (g *CSRFGuard) Issue(w http.ResponseWriter) (string, error) {
	token, err := IssueToken()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.config.CookieName,
		Value:    token,
		Path:     "/",
		Secure:   g.config.CookieSecure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// ValidateRequest checks the request's CSRF cookie against its CSRF header.
func (g *CSRFGuard) ValidateRequest(r *http.Request) error {
	var cookieToken string
	if c, err := r.Cookie(g.config.CookieName); err == nil {
		cookieToken = c.Value
	}
	return ValidateTokens(cookieToken, r.Header.Get(g.config.HeaderName))
}
