// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tomtom215/habgate/internal/api"
	"github.com/tomtom215/habgate/internal/auth"
	"github.com/tomtom215/habgate/internal/config"
	"github.com/tomtom215/habgate/internal/gateway"
	"github.com/tomtom215/habgate/internal/logging"
	"github.com/tomtom215/habgate/internal/metrics"
	"github.com/tomtom215/habgate/internal/middleware"
	"github.com/tomtom215/habgate/internal/proxyguard"
	"github.com/tomtom215/habgate/internal/supervisor"
	"github.com/tomtom215/habgate/internal/supervisor/services"
	"github.com/tomtom215/habgate/internal/upstream"
	"github.com/tomtom215/habgate/internal/visibility"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// gatewayApp is the assembled request path plus the parts that reload and
// maintenance need to reach.
type gatewayApp struct {
	handler http.Handler
	secret  *auth.RotatingSecret
	users   *auth.StaticCredentialStore
	filter  *visibility.Filter
	lockout *auth.LockoutTracker
}

// buildGateway wires the authorization pipeline, the upstream forwarder and
// the router from cfg.
func buildGateway(cfg *config.Config, st *stores) (*gatewayApp, error) {
	users, err := auth.NewStaticCredentialStore(cfg.AuthUsers())
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}

	filter, err := visibility.NewFilter(cfg.Sitemaps.Visibility)
	if err != nil {
		return nil, fmt.Errorf("visibility rules: %w", err)
	}

	allowlist, err := proxyguard.NewAllowlist(cfg.Proxy.Allowlist)
	if err != nil {
		return nil, fmt.Errorf("proxy allowlist: %w", err)
	}

	secret := auth.NewRotatingSecret(cfg.Security.Cookie.Key)
	tracker := auth.NewLockoutTracker(st.lockout, cfg.LockoutPolicy(), nil)

	pipeline, err := gateway.New(cfg.GatewayConfig(), gateway.Deps{
		Users:      users,
		Codec:      auth.NewCookieCodec(secret, nil),
		Lockout:    tracker,
		CSRF:       auth.NewCSRFGuard(cfg.CSRFOptions()),
		Proxy:      allowlist,
		Visibility: filter,
		Security:   logging.NewSecurityLogger(),
	})
	if err != nil {
		return nil, err
	}

	forwarder, err := upstream.New(cfg.UpstreamConfig(), upstream.SitemapListFilter(filter, gateway.RequestRole))
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}

	router, err := api.NewRouter(cfg.APIOptions(), api.Deps{
		Pipeline:    pipeline,
		Forwarder:   forwarder,
		Settings:    visibility.NewSettings(filter, st.settings),
		Lockout:     tracker,
		Performance: middleware.NewPerformanceMonitor(1000, middleware.DefaultSlowThreshold),
	})
	if err != nil {
		return nil, err
	}

	return &gatewayApp{
		handler: router.SetupChi(),
		secret:  secret,
		users:   users,
		filter:  filter,
		lockout: tracker,
	}, nil
}

func main() {
	cfgPath := config.FindConfigFile()
	cfg, _, err := config.LoadFrom(cfgPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.LoggingOptions())
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	logging.Info().
		Str("version", version).
		Str("config_file", cfgPath).
		Str("upstream", cfg.Proxy.UpstreamURL).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("storage", cfg.Storage.Backend).
		Msg("Starting HABGate")

	for _, w := range cfg.Warnings() {
		logging.Warn().Msg(w)
	}

	st, err := openStores(cfg.Storage)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	app, err := buildGateway(cfg, st)
	if err != nil {
		// Fatal skips deferred calls.
		_ = st.Close()
		logging.Fatal().Err(err).Msg("Failed to build gateway")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		_ = st.Close()
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
	// WriteTimeout stays unset: relayed event streams and WebSockets are long-lived.

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	tree.AddStorageService(services.NewMaintenanceService(cfg.Storage.GCInterval, st.maintenanceTasks(app.lockout)...))

	reload := newReloader(cfgPath, cfg, app)
	if cfg.Server.WatchConfig && cfgPath != "" {
		if _, err := config.WatchConfigFile(cfgPath, func() {
			if err := reload.Reload(); err != nil {
				logging.Error().Err(err).Msg("Config reload failed, keeping previous settings")
			}
		}); err != nil {
			logging.Warn().Err(err).Str("path", cfgPath).Msg("Config file watch unavailable")
		} else {
			logging.Info().Str("path", cfgPath).Msg("Watching config file for changes")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				if cfgPath == "" {
					logging.Warn().Msg("SIGHUP received but no config file is in use")
					continue
				}
				if err := reload.Reload(); err != nil {
					logging.Error().Err(err).Msg("Config reload failed, keeping previous settings")
				}
				continue
			}
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
			return
		}
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Msg("HABGate stopped")
}
