package ports

// MetricsRecorder is the port interface for recording metrics.
// Implementations are adapters (Prometheus for production, noop for
// disabled/testing).
type MetricsRecorder interface {
	// RecordLoginStarted records an AuthnRequest issued to an IdP.
	RecordLoginStarted(idpEntityID string)

	// RecordAssertion records an assertion consumption attempt.
	RecordAssertion(success bool)

	// RecordLogout records the outcome of one SLO leg by kind
	// ("sp_reply", "idp_request") and outcome label.
	RecordLogout(kind, outcome string)

	// RecordStateOp records a protocol state store operation result.
	RecordStateOp(op string, success bool)
}
