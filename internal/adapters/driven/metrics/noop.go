// Package metrics provides MetricsRecorder adapters.
package metrics

// Noop is a no-op recorder for when metrics are disabled. All methods are
// safe to call and do nothing.
type Noop struct{}

// NewNoop creates a new no-op metrics recorder.
func NewNoop() *Noop {
	return &Noop{}
}

// RecordLoginStarted is a no-op.
func (*Noop) RecordLoginStarted(idpEntityID string) {}

// RecordAssertion is a no-op.
func (*Noop) RecordAssertion(success bool) {}

// RecordLogout is a no-op.
func (*Noop) RecordLogout(kind, outcome string) {}

// RecordStateOp is a no-op.
func (*Noop) RecordStateOp(op string, success bool) {}
