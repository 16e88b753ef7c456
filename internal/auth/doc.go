// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

/*
Package auth provides the credential and session primitives of the gateway.

Components:
  - CredentialStore: configured users, plain or bcrypt passwords
  - CookieCodec: HMAC-SHA256 signed, stateless authentication cookies
  - LockoutTracker: per-client failed-login counting with timed lockout
  - CSRFGuard: double-submit cookie tokens for state-changing requests

Cookies carry their own expiry and are bound to the user's stored password,
so rotating a password or the signing key revokes every outstanding cookie.
There is no server-side session table.

Lockout state is kept in memory by default or in BadgerDB (BadgerLockoutStore)
when it must survive restarts.
*/
package auth
