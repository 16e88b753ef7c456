// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package proxyguard

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func TestParseEntry(t *testing.T) {
	tests := []struct {
		raw     string
		want    Entry
		wantErr error
	}{
		{"camera.local", Entry{Host: "camera.local"}, nil},
		{"Camera.Local:554", Entry{Host: "camera.local", Port: "554"}, nil},
		{"https://Allowed.Example.com", Entry{Host: "allowed.example.com"}, nil},
		{"http://nvr.lan:8080/path", Entry{Host: "nvr.lan", Port: "8080"}, nil},
		{"rtsps://cam:7441", Entry{Host: "cam", Port: "7441"}, nil},
		{"[fd00::1]:8443", Entry{Host: "fd00::1", Port: "8443"}, nil},
		{"[fd00::1]", Entry{Host: "fd00::1"}, nil},
		{"fd00::1", Entry{Host: "fd00::1"}, nil},
		{"192.168.1.10:80", Entry{Host: "192.168.1.10", Port: "80"}, nil},
		{"ftp://files.lan", Entry{}, ErrUnsupportedScheme},
		{"file:///etc/passwd", Entry{}, ErrUnsupportedScheme},
		{"javascript:alert(1)", Entry{}, ErrUnsupportedScheme},
		{"", Entry{}, ErrInvalidEntry},
		{"host:0", Entry{}, ErrInvalidEntry},
		{"host:70000", Entry{}, ErrInvalidEntry},
		{"[fd00::1", Entry{}, ErrInvalidEntry},
		{"a/b", Entry{}, ErrInvalidEntry},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseEntry(tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseEntry(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseEntry(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func mustAllowlist(t *testing.T, raw ...string) *Allowlist {
	t.Helper()
	a, err := NewAllowlist(raw)
	if err != nil {
		t.Fatalf("NewAllowlist(%v) error = %v", raw, err)
	}
	return a
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", raw, err)
	}
	return u
}

func TestAllowlist_SchemeAndPortMatching(t *testing.T) {
	a := mustAllowlist(t, "camera.local:554", "allowed.example.com", "[fd00::5]:8443")

	tests := []struct {
		target string
		want   bool
	}{
		{"rtsp://camera.local/stream", true},
		{"rtsp://camera.local:554/stream", true},
		{"rtsp://camera.local:555/stream", false},
		{"http://camera.local/stream", false},
		{"rtsps://camera.local/stream", false},
		{"http://allowed.example.com/x", true},
		{"https://allowed.example.com:8443/x", true},
		{"https://ALLOWED.example.com./x", true},
		{"http://evil.example.com/x", false},
		{"http://allowed.example.com@evil.example.com/x", false},
		{"ftp://allowed.example.com/x", false},
		{"gopher://allowed.example.com/x", false},
		{"https://[fd00::5]:8443/", true},
		{"https://[fd00::5]/", false},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			if got := a.IsAllowed(mustParse(t, tt.target)); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.target, got, tt.want)
			}
		})
	}
}

func TestAllowlist_EmptyDeniesEverything(t *testing.T) {
	empty := mustAllowlist(t)
	var nilList *Allowlist

	for _, target := range []string{"http://localhost/", "https://example.com/", "rtsp://cam/"} {
		u := mustParse(t, target)
		if empty.IsAllowed(u) {
			t.Errorf("empty allowlist allowed %q", target)
		}
		if nilList.IsAllowed(u) {
			t.Errorf("nil allowlist allowed %q", target)
		}
	}
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"ok", "http://cam.lan/snap.jpg", nil},
		{"empty", "", ErrTargetEmpty},
		{"too long", "http://cam.lan/" + strings.Repeat("a", 100), ErrTargetTooLong},
		{"newline", "http://cam.lan/\r\nHost: evil", ErrTargetControlChars},
		{"nul", "http://cam.lan/\x00", ErrTargetControlChars},
		{"space", "http://cam.lan/a b", ErrTargetControlChars},
		{"relative", "/etc/passwd", ErrTargetMalformed},
		{"opaque", "http:cam.lan", ErrTargetMalformed},
		{"scheme", "file://host/etc/passwd", ErrUnsupportedScheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateTarget(tt.raw, 64)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateTarget(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestAllowlist_Check(t *testing.T) {
	a := mustAllowlist(t, "cam.lan")

	if _, err := a.Check("http://cam.lan/snap.jpg", 0); err != nil {
		t.Errorf("Check() allowed target error = %v", err)
	}
	if _, err := a.Check("http://other.lan/", 0); !errors.Is(err, ErrTargetNotAllowed) {
		t.Errorf("Check() error = %v, want ErrTargetNotAllowed", err)
	}
}
