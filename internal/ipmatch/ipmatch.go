// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

// Package ipmatch parses client addresses and tests them against CIDR lists.
//
// Two list semantics coexist and must not be confused:
//
//   - The sentinel entry "0.0.0.0" (or "0.0.0.0/0") matches every address and
//     is how an operator says "no subnet restriction".
//   - An empty list matches nothing. Callers gate access on InAnyOf, so an
//     empty allow list denies every client.
package ipmatch

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// UnknownClient is the key used when the client address cannot be determined.
const UnknownClient = "unknown"

const mappedPrefix = "::ffff:"

// ErrInvalidCIDR is returned by ValidateCIDR for unparseable entries.
var ErrInvalidCIDR = errors.New("invalid CIDR")

// Normalize strips an IPv4-mapped IPv6 prefix ("::ffff:192.168.1.2" -> "192.168.1.2").
func Normalize(raw string) string {
	ip := strings.TrimSpace(raw)
	if len(ip) > len(mappedPrefix) && strings.EqualFold(ip[:len(mappedPrefix)], mappedPrefix) {
		rest := ip[len(mappedPrefix):]
		if strings.Contains(rest, ".") {
			return rest
		}
	}
	return ip
}

// isMatchAll reports whether cidr is the "no restriction" sentinel.
func isMatchAll(cidr string) bool {
	return cidr == "0.0.0.0" || cidr == "0.0.0.0/0"
}

// InSubnet reports whether ip lies inside cidr. A bare address is treated as
// a single-host network. Unparseable input never matches.
func InSubnet(ip, cidr string) bool {
	cidr = strings.TrimSpace(cidr)
	if isMatchAll(cidr) {
		return true
	}

	addr, err := netip.ParseAddr(Normalize(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	if !strings.Contains(cidr, "/") {
		host, err := netip.ParseAddr(Normalize(cidr))
		if err != nil {
			return false
		}
		return host.Unmap() == addr
	}

	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return false
	}
	if prefix.Addr().Is4() && prefix.Bits() > 32 {
		return false
	}
	return prefix.Masked().Contains(addr)
}

// InAnyOf reports whether ip lies in any entry of list. An empty list denies all.
func InAnyOf(ip string, list []string) bool {
	for _, cidr := range list {
		if InSubnet(ip, cidr) {
			return true
		}
	}
	return false
}

// ValidateCIDR checks that an entry is the match-all sentinel, a bare address,
// or a CIDR with a valid prefix length.
func ValidateCIDR(entry string) error {
	entry = strings.TrimSpace(entry)
	if isMatchAll(entry) {
		return nil
	}
	if !strings.Contains(entry, "/") {
		if _, err := netip.ParseAddr(Normalize(entry)); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidCIDR, entry)
		}
		return nil
	}
	if _, err := netip.ParsePrefix(entry); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCIDR, entry)
	}
	return nil
}

// RemoteIP extracts the peer address from r.RemoteAddr without consulting headers.
func RemoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return UnknownClient
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.Trim(addr, "[]")
	parsed, err := netip.ParseAddr(Normalize(addr))
	if err != nil {
		return UnknownClient
	}
	return parsed.Unmap().String()
}

// ClientIP resolves the client address. X-Forwarded-For and X-Real-IP are
// honoured only when the peer is one of trustedProxies. X-Forwarded-For is
// walked right to left past trusted hops; the first untrusted address is the
// client, since everything to its left was supplied by the client itself.
func ClientIP(r *http.Request, trustedProxies []string) string {
	remote := RemoteIP(r)
	if remote == UnknownClient || !InAnyOf(remote, trustedProxies) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return forwardedClient(xff, remote, trustedProxies)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(Normalize(xri)); err == nil {
			return addr.Unmap().String()
		}
	}
	return remote
}

// forwardedClient walks an X-Forwarded-For chain from the nearest hop. An
// unparseable hop ends the walk at the last trusted address seen.
func forwardedClient(xff, remote string, trustedProxies []string) string {
	hops := strings.Split(xff, ",")
	last := remote
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(Normalize(strings.TrimSpace(hops[i])))
		if err != nil {
			return last
		}
		ip := addr.Unmap().String()
		if !InAnyOf(ip, trustedProxies) {
			return ip
		}
		last = ip
	}
	return last
}
