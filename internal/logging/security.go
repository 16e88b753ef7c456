// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package logging

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent represents a security-relevant gateway event for audit logging.
type SecurityEvent struct {
	// Event is the event type (e.g. "login_success", "lockout", "proxy_denied").
	Event string
	// Username is the user involved, if known. It is masked on output.
	Username string
	// SessionID is the cookie session identifier, if known. It is masked on output.
	SessionID string
	// Method is the authentication method (cookie, basic, form).
	Method string
	// IPAddress is the client IP after proxy resolution.
	IPAddress string
	// Path is the request path.
	Path string
	// Success indicates if the operation was successful.
	Success bool
	// Reason is a short, non-secret explanation for failures.
	Reason string
	// Details contains additional fields; values are sanitized by key.
	Details map[string]string
}

// SecurityLogger writes SecurityEvents with sensitive values masked.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a security logger on top of the global logger.
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{
		logger: With().Str("component", "security").Logger(),
	}
}

// NewSecurityLoggerWithLogger creates a security logger with a custom zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With().Str("component", "security").Logger(),
	}
}

// LogEvent logs a security event. Failures are logged at warn level.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Info()
	status := "success"
	if !event.Success {
		e = l.logger.Warn()
		status = "failed"
	}

	e = e.Str("event", event.Event).Str("status", status)

	if event.Username != "" {
		e = e.Str("username", SanitizeUsername(event.Username))
	}
	if event.SessionID != "" {
		e = e.Str("session_id", SanitizeSessionID(event.SessionID))
	}
	if event.Method != "" {
		e = e.Str("method", event.Method)
	}
	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}
	if event.Path != "" {
		e = e.Str("path", truncateString(event.Path, 200))
	}
	if event.Reason != "" && !event.Success {
		e = e.Str("reason", truncateString(event.Reason, 200))
	}
	for k, v := range event.Details {
		e = e.Str(k, sanitizeValue(k, v))
	}

	e.Send()
}

// LogLoginSuccess logs a successful credential check.
func (l *SecurityLogger) LogLoginSuccess(username, sessionID, method, ip string) {
	l.LogEvent(&SecurityEvent{
		Event:     "login_success",
		Username:  username,
		SessionID: sessionID,
		Method:    method,
		IPAddress: ip,
		Success:   true,
	})
}

// LogLoginFailure logs a failed credential check.
func (l *SecurityLogger) LogLoginFailure(username, method, ip string, failures int) {
	l.LogEvent(&SecurityEvent{
		Event:     "login_failure",
		Username:  username,
		Method:    method,
		IPAddress: ip,
		Reason:    "invalid credentials",
		Details: map[string]string{
			"failure_count": strconv.Itoa(failures),
		},
	})
}

// LogLockout logs a key entering (or being held in) the locked state.
func (l *SecurityLogger) LogLockout(key string, remainingSeconds int) {
	l.LogEvent(&SecurityEvent{
		Event:     "lockout",
		IPAddress: key,
		Reason:    "too many failed attempts",
		Details: map[string]string{
			"remaining_seconds": strconv.Itoa(remainingSeconds),
		},
	})
}

// LogLogout logs a client-side logout.
func (l *SecurityLogger) LogLogout(username, ip string) {
	l.LogEvent(&SecurityEvent{
		Event:     "logout",
		Username:  username,
		IPAddress: ip,
		Success:   true,
	})
}

// LogCSRFFailure logs a CSRF double-submit mismatch.
func (l *SecurityLogger) LogCSRFFailure(ip, path string) {
	l.LogEvent(&SecurityEvent{
		Event:     "csrf_failure",
		IPAddress: ip,
		Path:      path,
		Reason:    "csrf token mismatch",
	})
}

// LogProxyDenied logs an outbound proxy target rejected by the allowlist.
func (l *SecurityLogger) LogProxyDenied(username, ip, host, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:     "proxy_denied",
		Username:  username,
		IPAddress: ip,
		Reason:    reason,
		Details: map[string]string{
			"target_host": host,
		},
	})
}

// LogVisibilityDenied logs a sitemap access refused for the caller's role.
func (l *SecurityLogger) LogVisibilityDenied(username, role, sitemap string) {
	l.LogEvent(&SecurityEvent{
		Event:    "visibility_denied",
		Username: username,
		Reason:   "sitemap not visible to role",
		Details: map[string]string{
			"role":    role,
			"sitemap": sitemap,
		},
	})
}

// LogSubnetDenied logs a client outside the allowed subnets.
func (l *SecurityLogger) LogSubnetDenied(ip, path string) {
	l.LogEvent(&SecurityEvent{
		Event:     "subnet_denied",
		IPAddress: ip,
		Path:      path,
		Reason:    "client not in allowed subnets",
	})
}

// SanitizeToken masks a token, showing only the first and last 4 characters.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeSessionID masks a session ID.
func SanitizeSessionID(sessionID string) string {
	return SanitizeToken(sessionID)
}

// SanitizeUsername masks a username, keeping the first 2 characters.
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + "***"
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"csrf":          true,
	"csrf_token":    true,
	"cookie":        true,
	"authorization": true,
	"session":       true,
	"session_id":    true,
}

// sanitizeValue masks value when key names a credential-like field.
func sanitizeValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return SanitizeToken(value)
	}
	return truncateString(value, 200)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
