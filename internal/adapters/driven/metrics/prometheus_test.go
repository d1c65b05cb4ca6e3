//go:build unit

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheus_Counters(t *testing.T) {
	r := NewPrometheusWithRegistry(prometheus.NewRegistry())

	r.RecordLoginStarted("https://idp.example.com")
	r.RecordLoginStarted("https://idp.example.com")
	r.RecordAssertion(true)
	r.RecordAssertion(false)
	r.RecordLogout("sp_reply", "success")
	r.RecordLogout("idp_request", "partial")
	r.RecordStateOp("commit", true)

	if got := testutil.ToFloat64(r.loginsStartedTotal.WithLabelValues("https://idp.example.com")); got != 2 {
		t.Errorf("logins_started = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.assertionsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("assertions success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.assertionsTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("assertions failure = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.logoutsTotal.WithLabelValues("idp_request", "partial")); got != 1 {
		t.Errorf("logouts idp_request/partial = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.stateOpsTotal.WithLabelValues("commit", "success")); got != 1 {
		t.Errorf("state_ops commit/success = %v, want 1", got)
	}
}

func TestNoop_IsSafe(t *testing.T) {
	n := NewNoop()
	n.RecordLoginStarted("x")
	n.RecordAssertion(true)
	n.RecordLogout("sp_reply", "failed")
	n.RecordStateOp("acquire", false)
}
