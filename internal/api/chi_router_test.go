// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package api

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/gateway"
	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/proxyguard"
	"github.com/tomtom215/habgate/internal/upstream"
	"github.com/tomtom215/habgate/internal/visibility"
)

type testStack struct {
	handler  http.Handler
	backend  *httptest.Server
	hits     *atomic.Int32
	tracker  *auth.LockoutTracker
	settings *visibility.Settings
}

// newBackend imitates the dashboard server.
func newBackend(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/sitemaps", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"name":"home","label":"Home"},{"name":"ops","label":"Operations"}]`)
	})
	mux.HandleFunc("/rest/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("X-Seen-Authorization", r.Header.Get("Authorization"))
		w.Header().Set("X-Seen-Cookie", r.Header.Get("Cookie"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"path":"`+r.URL.Path+`"}`)
	})
	mux.HandleFunc("/snapshot.jpg", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = io.WriteString(w, "jpeg-bytes")
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(kind, data); err != nil {
				return
			}
		}
	})
	return httptest.NewServer(mux)
}

func newTestStack(t *testing.T, mutate func(*Options)) *testStack {
	t.Helper()

	hits := &atomic.Int32{}
	backend := newBackend(t, hits)
	t.Cleanup(backend.Close)

	backendURL, err := url.Parse(backend.URL)
	if err != nil {
		t.Fatalf("parse backend URL: %v", err)
	}

	users, err := auth.NewStaticCredentialStore([]auth.User{
		{Username: "alice", Password: "correct-horse", Role: auth.RoleNormal},
		{Username: "root", Password: "admin-pass", Role: auth.RoleAdmin},
	})
	if err != nil {
		t.Fatalf("NewStaticCredentialStore() error = %v", err)
	}
	tracker := auth.NewLockoutTracker(auth.NewMemoryLockoutStore(),
		&auth.LockoutConfig{Threshold: 3, Window: 15 * time.Minute, Enabled: true}, nil)
	filter, err := visibility.NewFilter([]visibility.Rule{{Name: "ops", Visibility: visibility.Admin}})
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	allow, err := proxyguard.NewAllowlist([]string{backendURL.Host})
	if err != nil {
		t.Fatalf("NewAllowlist() error = %v", err)
	}

	pipeline, err := gateway.New(gateway.Config{
		Mode:         gateway.ModeBasic,
		AllowSubnets: []string{"0.0.0.0"},
		Cookie:       auth.CookieOptions{Name: "AuthStore", TTLDays: 14},
	}, gateway.Deps{
		Users:      users,
		Codec:      auth.NewCookieCodec(auth.NewRotatingSecret("router-test-key"), nil),
		Lockout:    tracker,
		CSRF:       auth.NewCSRFGuard(nil),
		Proxy:      allow,
		Visibility: filter,
		Security:   logging.NewSecurityLoggerWithLogger(zerolog.New(io.Discard)),
	})
	if err != nil {
		t.Fatalf("gateway.New() error = %v", err)
	}

	fwd, err := upstream.New(upstream.Config{
		BaseURL:      backend.URL,
		Timeout:      5 * time.Second,
		Breaker:      upstream.BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second},
		StripCookies: []string{"AuthStore", "ohCSRF"},
	}, upstream.SitemapListFilter(filter, gateway.RequestRole))
	if err != nil {
		t.Fatalf("upstream.New() error = %v", err)
	}

	settings := visibility.NewSettings(filter, visibility.NewMemorySettingsStore())

	opts := Options{}
	if mutate != nil {
		mutate(&opts)
	}
	router, err := NewRouter(opts, Deps{
		Pipeline:  pipeline,
		Forwarder: fwd,
		Settings:  settings,
		Lockout:   tracker,
	})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	return &testStack{
		handler:  router.SetupChi(),
		backend:  backend,
		hits:     hits,
		tracker:  tracker,
		settings: settings,
	}
}

func (s *testStack) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, r)
	return rec
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func asUser(r *http.Request, user, pass string) *http.Request {
	r.Header.Set("Authorization", basicAuth(user, pass))
	return r
}

func sitemapNames(t *testing.T, body []byte) []string {
	t.Helper()
	var list []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode sitemap list %q: %v", body, err)
	}
	names := make([]string, 0, len(list))
	for _, s := range list {
		names = append(names, s.Name)
	}
	return names
}

func TestRouter_NewRouterRequiresDeps(t *testing.T) {
	if _, err := NewRouter(Options{}, Deps{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestRouter_Health(t *testing.T) {
	s := newTestStack(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var health HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" || health.Upstream != "closed" {
		t.Errorf("health = %+v", health)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestRouter_ForwardsOnlyAuthenticated(t *testing.T) {
	s := newTestStack(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/rest/items", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate in basic mode")
	}
	if got := s.hits.Load(); got != 0 {
		t.Fatalf("upstream hits = %d, want 0", got)
	}

	req := asUser(httptest.NewRequest(http.MethodGet, "/rest/items", nil), "alice", "correct-horse")
	req.AddCookie(&http.Cookie{Name: "ohCSRF", Value: "token"})
	req.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})
	rec = s.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Seen-Authorization"); got != "" {
		t.Errorf("upstream saw Authorization %q", got)
	}
	if got := rec.Header().Get("X-Seen-Cookie"); got != "theme=dark" {
		t.Errorf("upstream saw Cookie %q, want only theme=dark", got)
	}

	issued := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "AuthStore" && c.Value != "" {
			issued = true
		}
	}
	if !issued {
		t.Error("Basic success did not issue an AuthStore cookie")
	}
}

func TestRouter_RejectsDotSegments(t *testing.T) {
	s := newTestStack(t, nil)

	for _, target := range []string{"/fonts/../rest/items", "/fonts/%2e%2e/rest/items", "/rest/./items", "/rest//sitemaps/ops", "/rest/sitemaps;x", "/rest;x/sitemaps/ops", "/rest/sitemaps/ops%3Bx"} {
		rec := s.do(httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
	if got := s.hits.Load(); got != 0 {
		t.Errorf("upstream hits = %d, want 0", got)
	}
}

func TestRouter_SitemapListFilteredByRole(t *testing.T) {
	s := newTestStack(t, nil)

	tests := []struct {
		user, pass string
		want       []string
	}{
		{"alice", "correct-horse", []string{"home"}},
		{"root", "admin-pass", []string{"home", "ops"}},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			rec := s.do(asUser(httptest.NewRequest(http.MethodGet, "/rest/sitemaps", nil), tt.user, tt.pass))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
			}
			got := sitemapNames(t, rec.Body.Bytes())
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("sitemaps = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRouter_SitemapAccess(t *testing.T) {
	s := newTestStack(t, nil)

	tests := []struct {
		name       string
		target     string
		user, pass string
		wantStatus int
	}{
		{"normal denied hidden sitemap", "/rest/sitemaps/ops", "alice", "correct-horse", http.StatusForbidden},
		{"normal denied hidden page", "/rest/sitemaps/ops/ops", "alice", "correct-horse", http.StatusForbidden},
		{"normal denied hidden events", "/rest/sitemaps/events/sub-1?sitemap=ops&pageid=ops", "alice", "correct-horse", http.StatusForbidden},
		{"normal denied encoded name", "/rest/sitemaps/op%73", "alice", "correct-horse", http.StatusForbidden},
		{"normal denied encoded page", "/rest/sitemaps/%6Fps/ops", "alice", "correct-horse", http.StatusForbidden},
		{"normal denied encoded events", "/rest/sitemaps/event%73/sub-1?sitemap=ops", "alice", "correct-horse", http.StatusForbidden},
		{"encoded slash refused", "/rest/sitemaps/ops%2F", "alice", "correct-horse", http.StatusBadRequest},
		{"normal allowed visible sitemap", "/rest/sitemaps/home", "alice", "correct-horse", http.StatusOK},
		{"normal allowed encoded visible sitemap", "/rest/sitemaps/hom%65", "alice", "correct-horse", http.StatusOK},
		{"admin allowed hidden sitemap", "/rest/sitemaps/ops", "root", "admin-pass", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.hits.Load()
			rec := s.do(asUser(httptest.NewRequest(http.MethodGet, tt.target, nil), tt.user, tt.pass))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			forwarded := s.hits.Load() != before
			if forwarded != (tt.wantStatus == http.StatusOK) {
				t.Errorf("forwarded = %v for status %d", forwarded, rec.Code)
			}
		})
	}
}

func TestRouter_SelectedSitemapSettings(t *testing.T) {
	s := newTestStack(t, nil)

	post := func(sitemap string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/settings/selected-sitemap",
			strings.NewReader(`{"sitemap":"`+sitemap+`"}`))
		req.Header.Set("Content-Type", "application/json")
		return s.do(asUser(req, "alice", "correct-horse"))
	}
	get := func() string {
		rec := s.do(asUser(httptest.NewRequest(http.MethodGet, "/api/settings/selected-sitemap", nil), "alice", "correct-horse"))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET status = %d, want 200", rec.Code)
		}
		var resp SelectedSitemapResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return resp.Sitemap
	}

	if got := get(); got != "" {
		t.Fatalf("initial selection = %q, want empty", got)
	}
	if rec := post("home"); rec.Code != http.StatusOK {
		t.Fatalf("POST home status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if rec := post("ops"); rec.Code != http.StatusForbidden {
		t.Fatalf("POST ops status = %d, want 403", rec.Code)
	}
	if got := get(); got != "home" {
		t.Errorf("selection after denied write = %q, want home", got)
	}
	if rec := post("../etc"); rec.Code != http.StatusBadRequest {
		t.Errorf("POST invalid name status = %d, want 400", rec.Code)
	}
}

func TestRouter_SettingsRequireUser(t *testing.T) {
	s := newTestStack(t, nil)

	// /healthz is exempt but settings are not reachable without credentials.
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/settings/selected-sitemap", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_AdminLockouts(t *testing.T) {
	s := newTestStack(t, nil)

	for i := 0; i < 3; i++ {
		req := asUser(httptest.NewRequest(http.MethodGet, "/rest/items", nil), "alice", "wrong")
		req.RemoteAddr = "10.0.0.9:4000"
		s.do(req)
	}

	rec := s.do(asUser(httptest.NewRequest(http.MethodGet, "/api/admin/lockouts", nil), "alice", "correct-horse"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("normal user status = %d, want 403", rec.Code)
	}

	rec = s.do(asUser(httptest.NewRequest(http.MethodGet, "/api/admin/lockouts", nil), "root", "admin-pass"))
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}
	var listing struct {
		Lockouts []LockoutView `json:"lockouts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listing.Lockouts) != 1 || listing.Lockouts[0].Key != "10.0.0.9" {
		t.Fatalf("lockouts = %+v, want one entry for 10.0.0.9", listing.Lockouts)
	}
	if listing.Lockouts[0].RemainingSeconds <= 0 {
		t.Errorf("RemainingSeconds = %d, want > 0", listing.Lockouts[0].RemainingSeconds)
	}

	rec = s.do(asUser(httptest.NewRequest(http.MethodDelete, "/api/admin/lockouts/10.0.0.9", nil), "root", "admin-pass"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204 (body %s)", rec.Code, rec.Body.String())
	}
	rec = s.do(asUser(httptest.NewRequest(http.MethodDelete, "/api/admin/lockouts/10.0.0.9", nil), "root", "admin-pass"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", rec.Code)
	}

	req := asUser(httptest.NewRequest(http.MethodGet, "/rest/items", nil), "alice", "correct-horse")
	req.RemoteAddr = "10.0.0.9:4000"
	if rec := s.do(req); rec.Code != http.StatusOK {
		t.Errorf("after clear status = %d, want 200", rec.Code)
	}
}

func TestRouter_AdminPerformance(t *testing.T) {
	s := newTestStack(t, nil)

	s.do(asUser(httptest.NewRequest(http.MethodGet, "/rest/items", nil), "alice", "correct-horse"))
	rec := s.do(asUser(httptest.NewRequest(http.MethodGet, "/api/admin/performance", nil), "root", "admin-pass"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "GET /*") {
		t.Errorf("performance body missing forwarded route: %s", rec.Body.String())
	}
}

func TestRouter_Proxy(t *testing.T) {
	s := newTestStack(t, nil)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"missing url", "/proxy", http.StatusBadRequest},
		{"host not allowlisted", "/proxy?url=" + url.QueryEscape("http://169.254.169.254/latest/meta-data"), http.StatusForbidden},
		{"scheme not supported", "/proxy?url=" + url.QueryEscape("file:///etc/passwd"), http.StatusForbidden},
		{"allowlisted", "/proxy?url=" + url.QueryEscape(s.backend.URL+"/snapshot.jpg"), http.StatusOK},
		{"video preview allowlisted", "/video-preview?url=" + url.QueryEscape(s.backend.URL+"/snapshot.jpg"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(asUser(httptest.NewRequest(http.MethodGet, tt.target, nil), "alice", "correct-horse"))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != "jpeg-bytes" {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestRouter_LoginRateLimit(t *testing.T) {
	s := newTestStack(t, func(o *Options) {
		o.LoginRateLimitEnabled = true
		o.LoginRateLimitRequests = 2
		o.LoginRateLimitWindow = time.Hour
	})

	token, err := auth.IssueToken()
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	login := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"username":"alice","password":"correct-horse"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-CSRF-Token", token)
		req.AddCookie(&http.Cookie{Name: "ohCSRF", Value: token})
		return s.do(req)
	}

	for i := 0; i < 2; i++ {
		if rec := login(); rec.Code != http.StatusOK {
			t.Fatalf("login %d status = %d, want 200 (body %s)", i+1, rec.Code, rec.Body.String())
		}
	}
	rec := login()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third login status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestRouter_LoginPageCompressed(t *testing.T) {
	s := newTestStack(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := s.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", got)
	}
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestStack(t, nil)

	if rec := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous /metrics status = %d, want 401", rec.Code)
	}

	s.do(asUser(httptest.NewRequest(http.MethodGet, "/rest/items", nil), "alice", "correct-horse"))
	rec := s.do(asUser(httptest.NewRequest(http.MethodGet, "/metrics", nil), "root", "admin-pass"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "habgate_gateway_decisions_total") {
		t.Error("metrics output missing gateway decisions")
	}
}

func TestRouter_WebSocketRelay(t *testing.T) {
	s := newTestStack(t, nil)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	t.Run("anonymous handshake refused", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", srv.URL)
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err == nil {
			t.Fatal("expected handshake failure")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("response = %+v, want 401", resp)
		}
		resp.Body.Close()
	})

	t.Run("authenticated relay", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", srv.URL)
		header.Set("Authorization", basicAuth("alice", "correct-horse"))
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		if resp.Body != nil {
			resp.Body.Close()
		}
		defer conn.Close()

		if err := conn.WriteMessage(websocket.TextMessage, []byte("state?")); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		if string(data) != "state?" {
			t.Errorf("echo = %q", data)
		}
	})
}
