// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package api

import "errors"

// Router construction errors
var (
	// ErrMissingDependency indicates a required collaborator was not supplied.
	ErrMissingDependency = errors.New("missing router dependency")
)

// ErrorResponse is the JSON body of every error the API writes itself.
type ErrorResponse struct {
	Error string `json:"error"`
}
