package samlspflow

import (
	"github.com/philiph/samlspflow/internal/adapters/driven/metrics"
	"github.com/philiph/samlspflow/internal/core/ports"
)

// MetricsRecorder is re-exported so integrators can supply their own
// recorder without importing internal packages.
type MetricsRecorder = ports.MetricsRecorder

// NoopMetrics and PrometheusMetrics re-export the bundled recorders.
type NoopMetrics = metrics.Noop
type PrometheusMetrics = metrics.Prometheus

var (
	NewNoopMetrics                  = metrics.NewNoop
	NewPrometheusMetrics            = metrics.NewPrometheus
	NewPrometheusMetricsWithRegistry = metrics.NewPrometheusWithRegistry
)
