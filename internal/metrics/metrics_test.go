// HABGate - Home Automation Dashboard Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/habgate

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/healthz", "200"))
	RecordAPIRequest("GET", "/healthz", "200", 3*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/healthz", "200"))

	if after-before != 1 {
		t.Errorf("APIRequestsTotal delta = %v, want 1", after-before)
	}
}

func TestRecordDecision(t *testing.T) {
	allow := GatewayDecisions.WithLabelValues("allow", "cookie")
	deny := GatewayDecisions.WithLabelValues("deny", "locked_out")
	allowBefore, denyBefore := testutil.ToFloat64(allow), testutil.ToFloat64(deny)

	RecordDecision(true, "cookie")
	RecordDecision(false, "locked_out")
	RecordDecision(false, "locked_out")

	if d := testutil.ToFloat64(allow) - allowBefore; d != 1 {
		t.Errorf("allow delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(deny) - denyBefore; d != 2 {
		t.Errorf("deny delta = %v, want 2", d)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("after inc = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("after dec = %v, want %v", got, before)
	}
}
