// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

/*
Package gateway implements the per-request authorization pipeline.

Every request is reduced to one Outcome, either Allow(AuthDecision) or
Deny(Reason), by Pipeline.Evaluate. The chain is:

 1. client IP (X-Forwarded-For only from trusted proxies) against allow_subnets
 2. fixed exemptions: /login, /login.js, /fonts/*, /healthz, and
    /manifest.webmanifest when the Referer host is the request host
 3. POST /api/auth/login: CSRF double-submit check, then the login handler
 4. authentication cookie (a valid cookie skips the lockout check)
 5. optional LAN bypass
 6. lockout check for the client IP
 7. HTTP Basic credentials; success issues a cookie, failure counts toward lockout
 8. CSRF for cookie-authenticated state-changing /api/ calls

Pipeline.Middleware applies the outcome. WebSocket handshakes go through the
same chain and are refused with a plain HTTP response before any upgrade.
*/
package gateway
