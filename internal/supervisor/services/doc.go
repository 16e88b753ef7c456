// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

/*
Package services adapts gateway components to suture.Service.

HTTPServerService runs an *http.Server and drains it with Shutdown when the
supervisor stops it. A listener error is returned so suture restarts it.

MaintenanceService runs MaintenanceTask values on a ticker:

	services.NewMaintenanceService(time.Minute,
	    services.LockoutSweepTask(tracker),
	    services.BadgerGCTask(db, services.DefaultGCDiscardRatio),
	)

Task errors are logged and retried on the next tick.
*/
package services
