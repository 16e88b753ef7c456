// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package upstream

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/habgate/internal/logging"
)

var (
	// ErrThrottled is returned when the outbound request budget is spent.
	ErrThrottled = errors.New("upstream request budget exhausted")

	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrUnsupportedFetch is returned for allowlisted targets that are not HTTP(S).
	ErrUnsupportedFetch = errors.New("target scheme cannot be fetched")
)

// ResponseFilter may rewrite an upstream response before it reaches the client.
// resp.Request carries the original request context.
type ResponseFilter func(resp *http.Response) error

// Config describes the upstream dashboard server.
type Config struct {
	// BaseURL is the dashboard server every protected path is forwarded to.
	BaseURL string

	// Timeout bounds a single upstream response header wait.
	Timeout time.Duration

	Breaker BreakerConfig

	// RPS and Burst size the outbound budget. RPS <= 0 disables it.
	RPS   float64
	Burst int

	// StripCookies are gateway-owned cookie names removed before forwarding.
	StripCookies []string
}

// Forwarder relays allowed requests to the dashboard server and fetches
// allowlisted external targets. It never decides whether a request may
// proceed; the gateway pipeline has already done that.
type Forwarder struct {
	base      *url.URL
	transport *breakerTransport
	proxy     *httputil.ReverseProxy
	strip     map[string]struct{}
	filter    ResponseFilter
}

// New builds a forwarder for cfg.BaseURL.
func New(cfg Config, filter ResponseFilter) (*Forwarder, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("upstream: base url must be absolute http(s), got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RPS)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	rt := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		TLSHandshakeTimeout:   10 * time.Second,
	}

	f := &Forwarder{
		base:      base,
		transport: newBreakerTransport("upstream", rt, cfg.Breaker, limiter),
		strip:     make(map[string]struct{}, len(cfg.StripCookies)),
		filter:    filter,
	}
	for _, name := range cfg.StripCookies {
		f.strip[name] = struct{}{}
	}

	f.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(base)
			pr.SetXForwarded()
			f.scrub(pr.Out)
		},
		Transport:      f.transport,
		ModifyResponse: f.modifyResponse,
		ErrorHandler:   f.errorHandler,
	}
	return f, nil
}

// ServeHTTP forwards r to the dashboard server under the same path.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.proxy.ServeHTTP(w, r)
}

// Fetch retrieves an allowlisted external target on behalf of the client.
// target must already have passed the allowlist.
func (f *Forwarder) Fetch(w http.ResponseWriter, r *http.Request, target *url.URL) {
	if target.Scheme != "http" && target.Scheme != "https" {
		f.errorHandler(w, r, ErrUnsupportedFetch)
		return
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL = cloneURL(target)
			pr.Out.Host = target.Host
			pr.Out.Method = http.MethodGet
			pr.Out.Body = nil
			pr.Out.ContentLength = 0
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
		},
		Transport:    f.transport,
		ErrorHandler: f.errorHandler,
	}
	proxy.ServeHTTP(w, r)
}

// BaseURL returns the dashboard server address.
func (f *Forwarder) BaseURL() *url.URL {
	return cloneURL(f.base)
}

// BreakerState reports the upstream circuit state.
func (f *Forwarder) BreakerState() gobreaker.State {
	return f.transport.State()
}

func (f *Forwarder) modifyResponse(resp *http.Response) error {
	if f.filter == nil {
		return nil
	}
	return f.filter(resp)
}

func (f *Forwarder) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	message := "Bad gateway"
	switch {
	case errors.Is(err, ErrThrottled):
		status = http.StatusServiceUnavailable
		message = "Upstream busy"
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, ErrUnavailable):
		status = http.StatusServiceUnavailable
		message = "Upstream unavailable"
		w.Header().Set("Retry-After", strconv.Itoa(30))
	case errors.Is(err, ErrUnsupportedFetch):
		status = http.StatusBadRequest
		message = "Target cannot be fetched"
	}

	logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Upstream request failed")

	body, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// scrub removes gateway credentials from an outbound request. Sitemap list
// requests ask for an identity encoding so the body can be filtered.
func (f *Forwarder) scrub(out *http.Request) {
	out.Header.Del("Authorization")
	if isSitemapList(out.URL.Path) {
		out.Header.Del("Accept-Encoding")
	}
	if len(f.strip) == 0 {
		return
	}
	cookies := out.Cookies()
	out.Header.Del("Cookie")
	kept := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if _, drop := f.strip[c.Name]; drop {
			continue
		}
		kept = append(kept, c.Name+"="+c.Value)
	}
	if len(kept) > 0 {
		out.Header.Set("Cookie", strings.Join(kept, "; "))
	}
}

func isStatusError(err error) bool {
	var se *statusError
	return errors.As(err, &se)
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func cloneURL(u *url.URL) *url.URL {
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}
