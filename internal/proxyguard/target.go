// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package proxyguard

import (
	"errors"
	"fmt"
	"net/url"
	"unicode"
)

// DefaultMaxTargetLength bounds the raw proxy target accepted from a client.
const DefaultMaxTargetLength = 2048

// Target validation errors
var (
	// ErrTargetEmpty indicates a missing target parameter.
	ErrTargetEmpty = errors.New("target is empty")

	// ErrTargetTooLong indicates a target longer than the configured maximum.
	ErrTargetTooLong = errors.New("target too long")

	// ErrTargetControlChars indicates control or whitespace characters in the target.
	ErrTargetControlChars = errors.New("target contains control characters")

	// ErrTargetMalformed indicates a target that is not an absolute URL.
	ErrTargetMalformed = errors.New("target is not an absolute URL")

	// ErrTargetNotAllowed indicates a well-formed target missing from the allowlist.
	ErrTargetNotAllowed = errors.New("target not in proxy allowlist")
)

// ValidateTarget screens a raw client-supplied target and parses it.
// Control characters and oversized input are rejected before parsing.
func ValidateTarget(raw string, maxLen int) (*url.URL, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxTargetLength
	}
	if raw == "" {
		return nil, ErrTargetEmpty
	}
	if len(raw) > maxLen {
		return nil, ErrTargetTooLong
	}
	for _, r := range raw {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return nil, ErrTargetControlChars
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTargetMalformed, err)
	}
	if u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return nil, ErrTargetMalformed
	}
	if !SupportedScheme(u.Scheme) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return u, nil
}

// Check validates raw and then matches it against the allowlist.
func (a *Allowlist) Check(raw string, maxLen int) (*url.URL, error) {
	u, err := ValidateTarget(raw, maxLen)
	if err != nil {
		return nil, err
	}
	if !a.IsAllowed(u) {
		return nil, ErrTargetNotAllowed
	}
	return u, nil
}
