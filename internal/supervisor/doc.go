// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

/*
Package supervisor runs the gateway's long-lived goroutines under a suture v4
supervisor tree.

# Tree Structure

	habgate (root)
	├── storage-layer
	│   └── storage-maintenance (lockout sweep, Badger value-log GC)
	└── api-layer
	    └── http-server

Each layer is its own supervisor, so a crash-looping maintenance task backs
off without touching the listener. Supervisor events are logged through
sutureslog into the zerolog adapter from internal/logging.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddStorageService(services.NewMaintenanceService(cfg.Storage.GCInterval,
	    services.LockoutSweepTask(tracker)))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	return tree.Serve(ctx)

# Configuration

TreeConfig zero values take suture's defaults: 5 failures before backoff,
30 seconds decay, 15 seconds backoff, 10 seconds per-service shutdown.

# Shutdown

Canceling the context passed to Serve stops every layer. Services that do not
return within ShutdownTimeout are listed by UnstoppedServiceReport.

# See Also

  - internal/supervisor/services: service wrappers
  - github.com/thejerf/suture/v4
*/
package supervisor
