// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Authentication cookie wire format (URL-safe base64 of the whole string):
//
//	current: userB64 "|" sessionId "|" expiryEpochSec "|" hex(hmac)
//	legacy:  userB64 "|" expiryEpochSec "|" hex(hmac)
//
// hmac = HMAC-SHA256(secret, payload "|" password). Only the current layout
// is issued; both are accepted.
const (
	legacyCookieFields  = 3
	currentCookieFields = 4
	secondsPerDay       = 86400
)

// Cookie errors
var (
	// ErrUnauthenticated is the only error Decode returns. Malformed input,
	// expiry, unknown users and bad signatures are indistinguishable by design
	// of the wire protocol: callers must not learn which check failed.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidSessionID is returned by Encode for session IDs containing '|'.
	ErrInvalidSessionID = errors.New("session id must not contain '|'")

	// ErrNoSecret is returned by Encode when no signing key is configured.
	ErrNoSecret = errors.New("cookie signing key not configured")
)

// SecretProvider supplies the current HMAC key for cookie signing.
type SecretProvider interface {
	Secret() []byte
}

// RotatingSecret is a SecretProvider whose key can be swapped at runtime
// (config reload) without locking readers.
type RotatingSecret struct {
	key atomic.Pointer[[]byte]
}

// NewRotatingSecret creates a provider holding secret.
func NewRotatingSecret(secret string) *RotatingSecret {
	s := &RotatingSecret{}
	s.Rotate(secret)
	return s
}

// Rotate replaces the signing key. Cookies signed with the old key stop verifying.
func (s *RotatingSecret) Rotate(secret string) {
	b := []byte(secret)
	s.key.Store(&b)
}

// Secret implements SecretProvider.
func (s *RotatingSecret) Secret() []byte {
	if p := s.key.Load(); p != nil {
		return *p
	}
	return nil
}

// CookieIdentity is the result of a successful Decode.
type CookieIdentity struct {
	Username  string
	SessionID string // empty for legacy cookies
	ExpiresAt time.Time
	Legacy    bool
}

// CookieCodec encodes and verifies authentication cookie values.
type CookieCodec struct {
	secrets SecretProvider
	now     func() time.Time
}

// NewCookieCodec creates a codec. now may be nil (defaults to time.Now).
func NewCookieCodec(secrets SecretProvider, now func() time.Time) *CookieCodec {
	if now == nil {
		now = time.Now
	}
	return &CookieCodec{secrets: secrets, now: now}
}

// Encode produces a current-format cookie value valid for ttlDays.
func (c *CookieCodec) Encode(username, password, sessionID string, ttlDays int) (string, time.Time, error) {
	if strings.Contains(sessionID, "|") {
		return "", time.Time{}, ErrInvalidSessionID
	}
	secret := c.secrets.Secret()
	if len(secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}

	expiry := c.now().Unix() + int64(ttlDays)*secondsPerDay
	payload := strings.Join([]string{
		base64.RawURLEncoding.EncodeToString([]byte(username)),
		sessionID,
		strconv.FormatInt(expiry, 10),
	}, "|")

	sig := signCookiePayload(secret, payload, password)
	value := base64.RawURLEncoding.EncodeToString([]byte(payload + "|" + sig))
	return value, time.Unix(expiry, 0), nil
}

// Decode verifies a cookie value against users. Every failure returns
// ErrUnauthenticated.
func (c *CookieCodec) Decode(value string, users CredentialStore) (*CookieIdentity, error) {
	raw, err := decodeBase64URL(value)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	fields := strings.Split(string(raw), "|")
	var userField, sessionID, expiryField, sigField string
	switch len(fields) {
	case legacyCookieFields:
		userField, expiryField, sigField = fields[0], fields[1], fields[2]
	case currentCookieFields:
		userField, sessionID, expiryField, sigField = fields[0], fields[1], fields[2], fields[3]
	default:
		return nil, ErrUnauthenticated
	}

	expiry, ok := parseExpiry(expiryField)
	if !ok || expiry <= c.now().Unix() {
		return nil, ErrUnauthenticated
	}

	usernameBytes, err := decodeBase64URL(userField)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	username := string(usernameBytes)

	user, found := users.Lookup(username)
	if !found || user.Disabled {
		return nil, ErrUnauthenticated
	}

	secret := c.secrets.Secret()
	if len(secret) == 0 {
		return nil, ErrUnauthenticated
	}

	payload := userField + "|" + expiryField
	if len(fields) == currentCookieFields {
		payload = userField + "|" + sessionID + "|" + expiryField
	}
	expected := signCookiePayload(secret, payload, user.Password)
	if len(sigField) != len(expected) {
		return nil, ErrUnauthenticated
	}
	if subtle.ConstantTimeCompare([]byte(sigField), []byte(expected)) != 1 {
		return nil, ErrUnauthenticated
	}

	return &CookieIdentity{
		Username:  username,
		SessionID: sessionID,
		ExpiresAt: time.Unix(expiry, 0),
		Legacy:    len(fields) == legacyCookieFields,
	}, nil
}

// signCookiePayload returns hex(HMAC-SHA256(secret, payload|password)).
func signCookiePayload(secret []byte, payload, password string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	mac.Write([]byte("|"))
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// decodeBase64URL accepts URL-safe base64 with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrUnauthenticated
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// parseExpiry accepts only non-empty all-digit strings that fit in int64.
func parseExpiry(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CookieOptions controls the attributes of the issued authentication cookie.
type CookieOptions struct {
	Name    string
	TTLDays int
	Secure  bool
}

// NewAuthCookie builds the Set-Cookie for a freshly encoded value:
// Path=/; Expires=...; HttpOnly; SameSite=Lax.
func NewAuthCookie(opts CookieOptions, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     opts.Name,
		Value:    value,
		Path:     "/",
		Expires:  expires.UTC(),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearAuthCookie builds a Set-Cookie that removes the authentication cookie.
// Logout is client-side only; the old value stays valid until it expires.
func ClearAuthCookie(opts CookieOptions) *http.Cookie {
	return &http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
