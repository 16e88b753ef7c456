// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package gateway

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/ipmatch"
	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/validation"
)

//go:embed templates/login.html templates/login.js
var templateFS embed.FS

var loginTemplate = template.Must(template.ParseFS(templateFS, "templates/login.html"))

// maxLoginBody bounds the login request body.
const maxLoginBody = 4 << 10

// LoginRequest is the body of POST /api/auth/login (JSON or form encoded).
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	OK       bool   `json:"ok"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginPageData struct {
	Title            string
	CSRFToken        string
	Error            string
	LockedOut        bool
	RemainingSeconds int
	Next             string
}

// HandleLogin verifies submitted credentials. The middleware has already
// checked the CSRF token; lockout is checked before the password.
func (p *Pipeline) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := ipmatch.ClientIP(r, p.cfg.TrustedProxies)
	key := lockoutKey(ip)

	req, err := decodeLoginRequest(w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid login request")
		return
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		writeJSONError(w, http.StatusBadRequest, verr.Error())
		return
	}

	if reason := p.checkLockout(ctx, key); reason != nil {
		p.WriteDeny(w, r, *reason)
		return
	}

	user, err := auth.VerifyCredentials(p.users, req.Username, req.Password)
	if err != nil {
		reason := p.recordFailure(ctx, key, req.Username, "form", ip)
		if reason.Kind == DenyUnauthenticated {
			writeJSONError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		p.WriteDeny(w, r, reason)
		return
	}

	out := p.admit(ctx, key, user, "form", ip, ipmatch.InAnyOf(ip, p.cfg.LanSubnets))
	if len(out.Cookies) == 0 {
		writeJSONError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	for _, c := range out.Cookies {
		http.SetCookie(w, c)
	}

	d := out.Decision()
	writeJSON(w, http.StatusOK, LoginResponse{OK: true, Username: d.Username, Role: d.Role.String()})
}

func decodeLoginRequest(w http.ResponseWriter, r *http.Request) (*LoginRequest, error) {
	body := http.MaxBytesReader(w, r.Body, maxLoginBody)
	defer body.Close()

	var req LoginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	r.Body = body
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	req.Username = r.PostForm.Get("username")
	req.Password = r.PostForm.Get("password")
	if req.Username == "" && req.Password == "" {
		return nil, errors.New("empty login form")
	}
	return &req, nil
}

// HandleLogout clears the authentication cookie. Outstanding copies of the
// cookie stay valid until they expire.
func (p *Pipeline) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearAuthCookie(p.cfg.Cookie))

	if d, ok := DecisionFromContext(r.Context()); ok && d.Authenticated {
		p.security.LogLogout(d.Username, d.ClientIP)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleLoginScript serves the script that submits the login form with the
// CSRF header.
func (p *Pipeline) HandleLoginScript(w http.ResponseWriter, r *http.Request) {
	data, err := templateFS.ReadFile("templates/login.js")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

// HandleLoginPage renders the login form with a fresh CSRF token.
func (p *Pipeline) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	p.renderLoginPage(w, r, http.StatusOK, loginPageData{})
}

func (p *Pipeline) renderLoginPage(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	token, err := p.csrf.Issue(w)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to issue CSRF token")
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	data.CSRFToken = token
	if data.Title == "" {
		data.Title = "Sign in"
	}
	data.Next = safeNext(r.URL.Query().Get("next"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := loginTemplate.Execute(w, data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to render login page")
	}
}
