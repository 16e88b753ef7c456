// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/ipmatch"
	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/proxyguard"
	"github.com/tomtom215/habgate/internal/visibility"
)

// AuthMode selects how unauthenticated browsers are challenged.
type AuthMode string

const (
	// ModeBasic answers 401 with a WWW-Authenticate challenge.
	ModeBasic AuthMode = "basic"

	// ModeHTML serves the login page and redirects navigations to it.
	ModeHTML AuthMode = "html"
)

// Config holds the pipeline's static policy.
type Config struct {
	Mode AuthMode

	// AllowSubnets gates every request. Empty denies everyone; "0.0.0.0" allows everyone.
	AllowSubnets []string

	// LanSubnets mark clients as local (AuthDecision.IsLan).
	LanSubnets []string

	// LanBypass admits LAN clients without credentials.
	LanBypass bool

	// TrustedProxies are peers whose X-Forwarded-For is believed.
	TrustedProxies []string

	Cookie auth.CookieOptions

	// MaxTargetLength bounds raw proxy targets (default 2048).
	MaxTargetLength int
}

// Deps are the collaborators the pipeline orchestrates.
type Deps struct {
	Users      auth.CredentialStore
	Codec      *auth.CookieCodec
	Lockout    *auth.LockoutTracker
	CSRF       *auth.CSRFGuard
	Proxy      *proxyguard.Allowlist
	Visibility *visibility.Filter
	Security   *logging.SecurityLogger
}

// Pipeline turns each request into one Outcome.
type Pipeline struct {
	cfg        Config
	users      auth.CredentialStore
	codec      *auth.CookieCodec
	lockout    *auth.LockoutTracker
	csrf       *auth.CSRFGuard
	proxy      *proxyguard.Allowlist
	visibility *visibility.Filter
	security   *logging.SecurityLogger
	newSession func() string
}

// New validates deps and builds a pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Users == nil:
		return nil, errors.New("gateway: credential store is required")
	case deps.Codec == nil:
		return nil, errors.New("gateway: cookie codec is required")
	case deps.Lockout == nil:
		return nil, errors.New("gateway: lockout tracker is required")
	case deps.Visibility == nil:
		return nil, errors.New("gateway: visibility filter is required")
	}

	switch cfg.Mode {
	case "":
		cfg.Mode = ModeHTML
	case ModeBasic, ModeHTML:
	default:
		return nil, fmt.Errorf("gateway: invalid auth mode %q", cfg.Mode)
	}
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = "AuthStore"
	}
	if cfg.Cookie.TTLDays <= 0 {
		cfg.Cookie.TTLDays = 14
	}
	if cfg.MaxTargetLength <= 0 {
		cfg.MaxTargetLength = proxyguard.DefaultMaxTargetLength
	}
	if deps.CSRF == nil {
		deps.CSRF = auth.NewCSRFGuard(nil)
	}
	if deps.Proxy == nil {
		deps.Proxy = &proxyguard.Allowlist{}
	}
	if deps.Security == nil {
		deps.Security = logging.NewSecurityLogger()
	}

	p := &Pipeline{
		cfg:        cfg,
		users:      deps.Users,
		codec:      deps.Codec,
		lockout:    deps.Lockout,
		csrf:       deps.CSRF,
		proxy:      deps.Proxy,
		visibility: deps.Visibility,
		security:   deps.Security,
		newSession: func() string { return uuid.New().String() },
	}

	window := int(deps.Lockout.Config().Window.Seconds())
	deps.Lockout.SetOnLockout(func(e *auth.LockoutEntry) {
		auth.LockoutsTotal.Inc()
		p.security.LogLockout(e.Key, window)
	})

	return p, nil
}

// Mode returns the configured auth mode.
func (p *Pipeline) Mode() AuthMode { return p.cfg.Mode }

// CookieOptions returns the authentication cookie settings.
func (p *Pipeline) CookieOptions() auth.CookieOptions { return p.cfg.Cookie }

// Evaluate runs the authorization chain for r:
// subnet gate, path exemptions, cookie, LAN bypass, lockout, Basic, CSRF.
func (p *Pipeline) Evaluate(r *http.Request) Outcome {
	ctx := r.Context()
	ip := ipmatch.ClientIP(r, p.cfg.TrustedProxies)
	isLan := ipmatch.InAnyOf(ip, p.cfg.LanSubnets)

	if !ipmatch.InAnyOf(ip, p.cfg.AllowSubnets) {
		p.security.LogSubnetDenied(ip, r.URL.Path)
		return Deny(subnetDenied())
	}

	exempt := AuthDecision{Exempt: true, Role: auth.RoleNormal, IsLan: isLan, Method: "exempt", ClientIP: ip}
	switch classifyRoute(r) {
	case routeExempt:
		return Allow(exempt)
	case routeManifest:
		if sameHostReferer(r) {
			return Allow(exempt)
		}
	case routeLogin:
		if reason := p.checkCSRF(r, ip); reason != nil {
			return Deny(*reason)
		}
		return Allow(exempt)
	}

	if d, ok := p.cookieAuth(r, ip, isLan); ok {
		if requiresCSRF(r) {
			if reason := p.checkCSRF(r, ip); reason != nil {
				return Deny(*reason)
			}
		}
		return Allow(d)
	}

	if isLan && p.cfg.LanBypass {
		exempt.Method = "lan"
		return Allow(exempt)
	}

	key := lockoutKey(ip)
	if reason := p.checkLockout(ctx, key); reason != nil {
		return Deny(*reason)
	}

	username, password, err := auth.ParseBasicAuth(r.Header.Get("Authorization"))
	if errors.Is(err, auth.ErrNoCredentials) {
		return Deny(unauthenticated())
	}
	var user auth.User
	if err == nil {
		user, err = auth.VerifyCredentials(p.users, username, password)
	}
	if err != nil {
		return Deny(p.recordFailure(ctx, key, username, "basic", ip))
	}

	return p.admit(ctx, key, user, "basic", ip, isLan)
}

// cookieAuth verifies the authentication cookie if one is present.
func (p *Pipeline) cookieAuth(r *http.Request, ip string, isLan bool) (AuthDecision, bool) {
	c, err := r.Cookie(p.cfg.Cookie.Name)
	if err != nil || c.Value == "" {
		return AuthDecision{}, false
	}

	id, err := p.codec.Decode(c.Value, p.users)
	if err != nil {
		auth.CookieVerifications.WithLabelValues("rejected").Inc()
		logging.Ctx(r.Context()).Debug().Str("ip", ip).Msg("Authentication cookie rejected")
		return AuthDecision{}, false
	}
	auth.CookieVerifications.WithLabelValues("valid").Inc()

	user, _ := p.users.Lookup(id.Username)
	return AuthDecision{
		Authenticated: true,
		Username:      user.Username,
		Role:          visibility.RoleOf(true, user.Role),
		IsLan:         isLan,
		Method:        "cookie",
		SessionID:     id.SessionID,
		ClientIP:      ip,
	}, true
}

// checkLockout returns a LockedOut reason when key is locked. Store errors
// fail closed.
func (p *Pipeline) checkLockout(ctx context.Context, key string) *Reason {
	status, err := p.lockout.Check(ctx, key)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Lockout check failed")
		r := unauthenticated()
		return &r
	}
	if status.Locked {
		auth.LoginAttempts.WithLabelValues("any", "locked").Inc()
		r := lockedOut(status.RemainingSeconds())
		return &r
	}
	return nil
}

// recordFailure counts a failed credential check and picks 401 or 429.
func (p *Pipeline) recordFailure(ctx context.Context, key, username, method, ip string) Reason {
	auth.LoginAttempts.WithLabelValues(method, "failure").Inc()

	status, err := p.lockout.RecordFailure(ctx, key)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Failed to record login failure")
		return unauthenticated()
	}
	p.security.LogLoginFailure(username, method, ip, status.Failures)

	if status.Locked {
		return lockedOut(status.RemainingSeconds())
	}
	return unauthenticated()
}

// admit clears lockout state for key, issues a fresh cookie and allows the request.
func (p *Pipeline) admit(ctx context.Context, key string, user auth.User, method, ip string, isLan bool) Outcome {
	if err := p.lockout.RecordSuccess(ctx, key); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("key", key).Msg("Failed to clear lockout")
	}
	auth.LoginAttempts.WithLabelValues(method, "success").Inc()

	sessionID := p.newSession()
	out := Allow(AuthDecision{
		Authenticated: true,
		Username:      user.Username,
		Role:          visibility.RoleOf(true, user.Role),
		IsLan:         isLan,
		Method:        method,
		SessionID:     sessionID,
		ClientIP:      ip,
	})

	cookie, err := p.issueCookie(user, sessionID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to issue authentication cookie")
	} else {
		out.Cookies = append(out.Cookies, cookie)
	}

	p.security.LogLoginSuccess(user.Username, sessionID, method, ip)
	return out
}

func (p *Pipeline) issueCookie(user auth.User, sessionID string) (*http.Cookie, error) {
	value, expires, err := p.codec.Encode(user.Username, user.Password, sessionID, p.cfg.Cookie.TTLDays)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthCookie(p.cfg.Cookie, value, expires), nil
}

func (p *Pipeline) checkCSRF(r *http.Request, ip string) *Reason {
	if err := p.csrf.ValidateRequest(r); err != nil {
		auth.CSRFFailures.Inc()
		p.security.LogCSRFFailure(ip, r.URL.Path)
		reason := csrfMismatch()
		return &reason
	}
	return nil
}

// lockoutKey maps a client address to its lockout bucket.
func lockoutKey(ip string) string {
	if ip == "" {
		return ipmatch.UnknownClient
	}
	return ip
}
