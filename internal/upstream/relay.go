// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// Relay bridges an already-authorized client WebSocket to the dashboard
// server's WebSocket endpoint.
type Relay struct {
	target         *url.URL
	allowedOrigins []string
	upgrader       websocket.Upgrader
	dialer         *websocket.Dialer
}

// NewRelay creates a relay to path on the forwarder's base URL.
// allowedOrigins may contain "*"; an empty list accepts same-host origins only.
func NewRelay(f *Forwarder, path string, allowedOrigins []string) *Relay {
	target := f.BaseURL()
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}
	target.Path = path

	r := &Relay{
		target:         target,
		allowedOrigins: allowedOrigins,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
	r.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      r.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return r
}

// ServeHTTP dials upstream first so that an unreachable server is reported
// with an HTTP status instead of an immediately closed socket.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !rl.checkOrigin(r) {
		metrics.WSUpgradeRejections.Inc()
		w.Header().Set("Connection", "close")
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	target := *rl.target
	target.RawQuery = r.URL.RawQuery

	ctx, cancel := context.WithTimeout(r.Context(), rl.dialer.HandshakeTimeout)
	upstreamConn, resp, err := rl.dialer.DialContext(ctx, target.String(), nil)
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Upstream WebSocket dial failed")
		w.Header().Set("Connection", "close")
		http.Error(w, "Upstream unavailable", http.StatusBadGateway)
		return
	}

	clientConn, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = upstreamConn.Close()
		return
	}

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	pipe(clientConn, upstreamConn)
}

func (rl *Relay) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, allowed := range rl.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// pipe copies frames in both directions until either side closes.
func pipe(client, server *websocket.Conn) {
	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			_ = client.Close()
			_ = server.Close()
		})
	}

	client.SetReadLimit(maxMessageSize)
	server.SetReadLimit(maxMessageSize)
	_ = client.SetReadDeadline(time.Now().Add(pongWait))
	client.SetPongHandler(func(string) error {
		return client.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})

	go func() {
		defer closeBoth()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := client.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer closeBoth()
		copyFrames(server, client)
	}()

	copyFrames(client, server)
	close(done)
	closeBoth()
}

// copyFrames reads from src and writes to dst. Pings use WriteControl, which
// gorilla allows concurrently with WriteMessage.
func copyFrames(src, dst *websocket.Conn) {
	for {
		kind, data, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Msg("WebSocket relay closed")
			}
			return
		}
		_ = dst.SetWriteDeadline(time.Now().Add(writeWait))
		if err := dst.WriteMessage(kind, data); err != nil {
			return
		}
	}
}
