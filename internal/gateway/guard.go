// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package gateway

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/tomtom215/habgate/internal/metrics"
	"github.com/tomtom215/habgate/internal/proxyguard"
	"github.com/tomtom215/habgate/internal/visibility"
)

// CheckProxyTarget screens a client-supplied outbound URL and matches it
// against the allowlist. Callers must not fetch anything when a Reason is returned.
func (p *Pipeline) CheckProxyTarget(r *http.Request, raw string) (*url.URL, *Reason) {
	u, err := p.proxy.Check(raw, p.cfg.MaxTargetLength)
	if err == nil {
		return u, nil
	}

	label := targetDenyLabel(err)
	metrics.ProxyTargetsDenied.WithLabelValues(label).Inc()

	d, _ := DecisionFromContext(r.Context())
	host := ""
	if parsed, perr := url.Parse(raw); perr == nil {
		host = parsed.Hostname()
	}
	p.security.LogProxyDenied(d.Username, d.ClientIP, host, label)

	message := "Proxy target not allowed"
	if label != "not_allowed" {
		message = "Invalid proxy target"
	}
	reason := Forbidden(message)
	return nil, &reason
}

func targetDenyLabel(err error) string {
	switch {
	case errors.Is(err, proxyguard.ErrTargetNotAllowed):
		return "not_allowed"
	case errors.Is(err, proxyguard.ErrUnsupportedScheme):
		return "scheme"
	case errors.Is(err, proxyguard.ErrTargetTooLong):
		return "too_long"
	case errors.Is(err, proxyguard.ErrTargetControlChars):
		return "control_chars"
	default:
		return "malformed"
	}
}

// Visibility returns the sitemap visibility filter.
func (p *Pipeline) Visibility() *visibility.Filter {
	return p.visibility
}

// DenyVisibility answers a request that touched a sitemap hidden from the caller.
func (p *Pipeline) DenyVisibility(w http.ResponseWriter, r *http.Request, sitemap string) {
	metrics.VisibilityDenials.Inc()
	d, _ := DecisionFromContext(r.Context())
	p.security.LogVisibilityDenied(d.Username, d.Role.String(), sitemap)
	p.WriteDeny(w, r, Forbidden("Sitemap not available"))
}
