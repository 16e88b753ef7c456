// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

/*
Package api wires the gateway's HTTP surface onto a chi router.

Every route sits behind the authorization pipeline (gateway.Pipeline.Middleware).
The router only decides what happens to a request the pipeline has allowed:

	/healthz                          gateway health and upstream circuit state
	/metrics                          Prometheus exposition
	/login, /login.js                 login page and its script
	POST /api/auth/login, /logout     credential exchange (login is rate limited)
	/api/settings/selected-sitemap    per-user setting, visibility guarded
	/api/admin/lockouts, /performance admin role only
	/proxy?url=, /video-preview?url=  outbound fetch, allowlisted targets only
	/ws                               WebSocket relay to the dashboard server
	/rest/sitemaps/{name}[/...]       forwarded when the sitemap is visible
	everything else                   forwarded to the dashboard server

Paths containing "." or ".." segments are refused before the pipeline runs,
since route exemptions are prefix based.
*/
package api
