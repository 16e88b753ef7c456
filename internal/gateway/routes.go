// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package gateway

import (
	"net/http"
	"net/url"
	"strings"
)

// Gateway-owned paths.
const (
	PathLogin       = "/login"
	PathLoginScript = "/login.js"
	PathLoginAPI    = "/api/auth/login"
	PathLogoutAPI   = "/api/auth/logout"
	PathManifest    = "/manifest.webmanifest"
	PathHealth      = "/healthz"
	fontsPrefix     = "/fonts/"
	apiPrefix       = "/api/"
)

type route int

const (
	routeProtected route = iota
	routeExempt
	routeManifest
	routeLogin
)

// classifyRoute applies the fixed exemption table.
func classifyRoute(r *http.Request) route {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == PathLoginAPI:
		return routeLogin
	case path == PathLoginScript, path == PathHealth, strings.HasPrefix(path, fontsPrefix):
		return routeExempt
	case path == PathLogin && isSafeMethod(r.Method):
		return routeExempt
	case path == PathManifest && isSafeMethod(r.Method):
		return routeManifest
	default:
		return routeProtected
	}
}

// requiresCSRF reports whether a cookie-authenticated request must carry the
// double-submit token: state-changing calls to the gateway's own API.
func requiresCSRF(r *http.Request) bool {
	return !isSafeMethod(r.Method) && strings.HasPrefix(r.URL.Path, apiPrefix)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// sameHostReferer reports whether the Referer's host equals the request host.
func sameHostReferer(r *http.Request) bool {
	ref := r.Header.Get("Referer")
	if ref == "" || r.Host == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// isWebSocketUpgrade detects an HTTP/1.1 WebSocket handshake.
func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		headerContainsToken(r.Header.Get("Connection"), "upgrade")
}

func headerContainsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// isHTMLNavigation reports whether a browser is loading a page.
func isHTMLNavigation(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	if isWebSocketUpgrade(r) {
		return false
	}
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// safeNext keeps post-login redirects on this origin.
func safeNext(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	if strings.ContainsAny(raw, "\r\n") {
		return "/"
	}
	return raw
}
