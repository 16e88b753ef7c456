// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

// Package upstream forwards requests the gateway has already allowed to the
// dashboard server. Outbound traffic shares one circuit breaker and one
// token-bucket budget; the sitemap list response is filtered by role before
// it reaches the client.
package upstream
