// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package validation

import (
	"strings"
	"testing"
)

type sample struct {
	Subnets []string `validate:"dive,cidr_entry"`
	Proxy   []string `validate:"dive,proxy_entry"`
	Sitemap string   `validate:"omitempty,sitemap_name"`
	Mode    string   `validate:"required,oneof=basic html"`
}

func TestValidateStruct_CustomTags(t *testing.T) {
	tests := []struct {
		name    string
		in      sample
		wantErr string
	}{
		{
			name: "valid",
			in: sample{
				Subnets: []string{"0.0.0.0", "192.168.0.0/16", "10.0.0.1", "fd00::/8"},
				Proxy:   []string{"camera.local:554", "https://nvr.lan"},
				Sitemap: "home_main-1",
				Mode:    "html",
			},
		},
		{
			name:    "bad subnet",
			in:      sample{Subnets: []string{"192.168.0.0/99"}, Mode: "basic"},
			wantErr: "CIDR",
		},
		{
			name:    "bad proxy scheme",
			in:      sample{Proxy: []string{"ftp://files"}, Mode: "basic"},
			wantErr: "http/https/rtsp/rtsps",
		},
		{
			name:    "bad sitemap",
			in:      sample{Sitemap: "../etc", Mode: "basic"},
			wantErr: "letters",
		},
		{
			name:    "bad mode",
			in:      sample{Mode: "oauth"},
			wantErr: "one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateStruct() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateStruct() = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() returned different instances")
	}
}
