// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

// Package proxyguard decides which outbound targets the gateway may fetch
// on behalf of a client. It is the SSRF boundary for /proxy, /rest, /icon,
// /chart and /video-preview.
package proxyguard

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// defaultPorts maps every supported scheme to its implied port.
// A scheme missing here is never allowed.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"rtsp":  "554",
	"rtsps": "322",
}

// Allowlist errors
var (
	// ErrInvalidEntry indicates an allowlist entry that could not be parsed.
	ErrInvalidEntry = errors.New("invalid allowlist entry")

	// ErrUnsupportedScheme indicates a scheme other than http, https, rtsp, rtsps.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// Entry is one allowed host. An empty Port matches any port.
type Entry struct {
	Host string
	Port string
}

// String renders the entry in host[:port] form, bracketing IPv6 literals.
func (e Entry) String() string {
	host := e.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if e.Port == "" {
		return host
	}
	return host + ":" + e.Port
}

// SupportedScheme reports whether scheme may be proxied.
func SupportedScheme(scheme string) bool {
	_, ok := defaultPorts[strings.ToLower(scheme)]
	return ok
}

// ParseEntry parses a bare host, host:port, [ipv6]:port or a full
// http/https/rtsp/rtsps URL into an Entry.
func ParseEntry(raw string) (Entry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Entry{}, fmt.Errorf("%w: empty", ErrInvalidEntry)
	}

	if i := strings.Index(raw, "://"); i >= 0 {
		return parseURLEntry(raw, raw[:i])
	}
	if hasSchemePrefix(raw) {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, raw)
	}

	host, port, err := splitHostPort(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q: %v", ErrInvalidEntry, raw, err)
	}
	return newEntry(host, port, raw)
}

func parseURLEntry(raw, scheme string) (Entry, error) {
	if !SupportedScheme(scheme) {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %q: %v", ErrInvalidEntry, raw, err)
	}
	return newEntry(u.Hostname(), u.Port(), raw)
}

// hasSchemePrefix catches opaque forms such as "javascript:alert(1)" or
// "file:/etc/passwd" that carry a scheme without "//".
func hasSchemePrefix(raw string) bool {
	i := strings.IndexByte(raw, ':')
	if i <= 0 {
		return false
	}
	rest := raw[i+1:]
	if rest != "" && isDigits(rest) {
		return false
	}
	if strings.Count(raw, ":") > 1 {
		return false // bare IPv6 literal
	}
	head := raw[:i]
	for j := 0; j < len(head); j++ {
		c := head[j]
		isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if j == 0 && !isAlpha {
			return false
		}
		if !isAlpha && (c < '0' || c > '9') && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

// splitHostPort handles host, host:port, [v6], [v6]:port and bare v6.
func splitHostPort(raw string) (host, port string, err error) {
	if strings.HasPrefix(raw, "[") {
		end := strings.IndexByte(raw, ']')
		if end < 0 {
			return "", "", errors.New("missing ']'")
		}
		host = raw[1:end]
		rest := raw[end+1:]
		switch {
		case rest == "":
			return host, "", nil
		case strings.HasPrefix(rest, ":"):
			return host, rest[1:], nil
		default:
			return "", "", errors.New("garbage after ']'")
		}
	}

	switch strings.Count(raw, ":") {
	case 0:
		return raw, "", nil
	case 1:
		h, p, _ := strings.Cut(raw, ":")
		return h, p, nil
	default:
		return raw, "", nil
	}
}

func newEntry(host, port, raw string) (Entry, error) {
	host = normalizeHost(host)
	if host == "" || strings.ContainsAny(host, "/?#@ \t") {
		return Entry{}, fmt.Errorf("%w: %q: bad host", ErrInvalidEntry, raw)
	}
	if port != "" && !validPort(port) {
		return Entry{}, fmt.Errorf("%w: %q: bad port", ErrInvalidEntry, raw)
	}
	return Entry{Host: host, Port: port}, nil
}

func normalizeHost(host string) string {
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

func validPort(p string) bool {
	if !isDigits(p) {
		return false
	}
	n, err := strconv.Atoi(p)
	return err == nil && n > 0 && n <= 65535
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Allowlist is an immutable set of allowed proxy targets.
// The zero value and an empty list deny everything.
type Allowlist struct {
	entries []Entry
}

// NewAllowlist parses raw entries. It fails on the first invalid entry.
func NewAllowlist(raw []string) (*Allowlist, error) {
	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		e, err := ParseEntry(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return &Allowlist{entries: entries}, nil
}

// Entries returns a copy of the parsed entries.
func (a *Allowlist) Entries() []Entry {
	if a == nil {
		return nil
	}
	return append([]Entry(nil), a.entries...)
}

// IsAllowed reports whether target may be fetched. target must already be
// parsed; see ValidateTarget.
func (a *Allowlist) IsAllowed(target *url.URL) bool {
	if a == nil || len(a.entries) == 0 || target == nil {
		return false
	}

	scheme := strings.ToLower(target.Scheme)
	defaultPort, ok := defaultPorts[scheme]
	if !ok {
		return false
	}

	host := normalizeHost(target.Hostname())
	if host == "" {
		return false
	}

	port := target.Port()
	if port == "" {
		port = defaultPort
	} else if !validPort(port) {
		return false
	}

	for _, e := range a.entries {
		if e.Host != host {
			continue
		}
		if e.Port == "" || e.Port == port {
			return true
		}
	}
	return false
}
