// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

// Package validation provides struct validation using go-playground/validator v10.
// A single validator instance is shared process-wide; it registers the
// gateway's custom tags:
//
//   - cidr_entry: "0.0.0.0" sentinel, bare IP address or CIDR
//   - proxy_entry: proxy allowlist entry (host, host:port or http/https/rtsp/rtsps URL)
//   - sitemap_name: sitemap identifier (letters, digits, '_' and '-')
//
// Example usage:
//
//	type LoginRequest struct {
//	    Username string `json:"username" validate:"required,max=128"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    respondError(w, http.StatusBadRequest, err.Error())
//	    return
//	}
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/habgate/internal/ipmatch"
	"github.com/tomtom215/habgate/internal/proxyguard"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var sitemapNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error returns a human-readable error message.
func (e *ValidationError) Error() string {
	return e.Message
}

// RequestValidationError represents a collection of validation errors.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the slice of validation errors.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

// Error implements the error interface, returning a combined error message.
func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(ve.errors))
	for _, err := range ve.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the singleton validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Registration only fails for empty tags or nil funcs.
		_ = validate.RegisterValidation("cidr_entry", func(fl validator.FieldLevel) bool {
			return ipmatch.ValidateCIDR(fl.Field().String()) == nil
		})
		_ = validate.RegisterValidation("proxy_entry", func(fl validator.FieldLevel) bool {
			_, err := proxyguard.ParseEntry(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("sitemap_name", func(fl validator.FieldLevel) bool {
			return sitemapNamePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct validates a struct using the singleton validator.
// Returns nil if validation passes, or *RequestValidationError if validation fails.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &RequestValidationError{
			errors: []ValidationError{{Field: "unknown", Tag: "unknown", Message: err.Error()}},
		}
	}

	fieldErrors := make([]ValidationError, len(validationErrs))
	for i, fe := range validationErrs {
		fieldErrors[i] = ValidationError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translateError(fe),
		}
	}
	return &RequestValidationError{errors: fieldErrors}
}

// errorMessageTemplates maps validation tags to message templates.
var errorMessageTemplates = map[string]string{
	"required":     "%s is required",
	"cidr_entry":   "%s must be an IP address, a CIDR or 0.0.0.0",
	"proxy_entry":  "%s must be host, host:port or an http/https/rtsp/rtsps URL",
	"sitemap_name": "%s must contain only letters, digits, '_' and '-'",
}

// errorMessageWithParam maps validation tags to templates that include param.
var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"min":   "%s must be at least %s",
	"max":   "%s must be at most %s",
}

// translateError converts a validator.FieldError to a human-readable message.
func translateError(fe validator.FieldError) string {
	field := fe.Namespace()
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(template, field, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
