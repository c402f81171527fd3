// Package metrics provides observability for the registry module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registry lifecycle counts and governance latencies.
type Metrics struct {
	RegistriesCreated  prometheus.Counter
	GovernanceOps      *prometheus.CounterVec
	ThresholdClamps    prometheus.Counter
	GovernanceDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		RegistriesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_registries_created_total",
			Help: "Total number of owner registries created",
		}),
		GovernanceOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_registry_governance_ops_total",
			Help: "Governance operations applied, by action",
		}, []string{"action"}),
		ThresholdClamps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_registry_threshold_clamps_total",
			Help: "Times an owner removal clamped the threshold down",
		}),
		GovernanceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodia_registry_governance_duration_seconds",
			Help:    "Duration of governance operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementRegistriesCreated records a successful registry creation.
func (m *Metrics) IncrementRegistriesCreated() {
	m.RegistriesCreated.Inc()
}

// IncrementGovernanceOp records one applied governance action.
func (m *Metrics) IncrementGovernanceOp(action string) {
	m.GovernanceOps.WithLabelValues(action).Inc()
}

// IncrementThresholdClamps records an automatic threshold clamp.
func (m *Metrics) IncrementThresholdClamps() {
	m.ThresholdClamps.Inc()
}

// ObserveGovernance records the duration of a governance operation. Call with
// time.Now() captured at the start.
func (m *Metrics) ObserveGovernance(start time.Time) {
	m.GovernanceDuration.Observe(time.Since(start).Seconds())
}
