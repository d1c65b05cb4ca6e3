package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus records flow metrics using Prometheus.
type Prometheus struct {
	loginsStartedTotal *prometheus.CounterVec
	assertionsTotal    *prometheus.CounterVec
	logoutsTotal       *prometheus.CounterVec
	stateOpsTotal      *prometheus.CounterVec
}

// NewPrometheus creates a recorder registered with the default registry.
func NewPrometheus() *Prometheus {
	return NewPrometheusWithRegistry(prometheus.DefaultRegisterer)
}

// NewPrometheusWithRegistry creates a recorder with a custom registry.
// Use this for testing.
func NewPrometheusWithRegistry(reg prometheus.Registerer) *Prometheus {
	loginsStartedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samlsp_logins_started_total",
		Help: "Total AuthnRequests issued",
	}, []string{"idp_entity_id"})

	assertionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samlsp_assertions_total",
		Help: "Total assertion consumption attempts",
	}, []string{"result"})

	logoutsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samlsp_logouts_total",
		Help: "Total single logout legs processed",
	}, []string{"kind", "outcome"})

	stateOpsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "samlsp_state_ops_total",
		Help: "Total protocol state store operations",
	}, []string{"op", "result"})

	reg.MustRegister(loginsStartedTotal, assertionsTotal, logoutsTotal, stateOpsTotal)

	return &Prometheus{
		loginsStartedTotal: loginsStartedTotal,
		assertionsTotal:    assertionsTotal,
		logoutsTotal:       logoutsTotal,
		stateOpsTotal:      stateOpsTotal,
	}
}

// RecordLoginStarted records an AuthnRequest issued to an IdP.
func (p *Prometheus) RecordLoginStarted(idpEntityID string) {
	p.loginsStartedTotal.WithLabelValues(idpEntityID).Inc()
}

// RecordAssertion records an assertion consumption attempt.
func (p *Prometheus) RecordAssertion(success bool) {
	p.assertionsTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordLogout records the outcome of one SLO leg.
func (p *Prometheus) RecordLogout(kind, outcome string) {
	p.logoutsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordStateOp records a protocol state store operation result.
func (p *Prometheus) RecordStateOp(op string, success bool) {
	p.stateOpsTotal.WithLabelValues(op, resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
