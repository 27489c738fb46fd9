package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registration outcomes.
const (
	OutcomeAlreadyCleared = "already_cleared"
	OutcomeRegistered     = "registered"
	OutcomeConcurrent     = "concurrent"
	OutcomeInactive       = "inactive"
	OutcomeMissing        = "missing"
	OutcomeFailed         = "failed"
)

// Metrics provides observability for the compliance registrar.
type Metrics struct {
	Registrations  *prometheus.CounterVec
	Updates        *prometheus.CounterVec
	LookupDuration prometheus.Histogram
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers against reg; tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srwa_compliance_ensure_registered_total",
			Help: "EnsureRegistered calls by outcome",
		}, []string{"outcome"}),
		Updates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srwa_compliance_record_updates_total",
			Help: "Explicit attest and revoke writes",
		}, []string{"action"}),
		LookupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "srwa_compliance_lookup_duration_seconds",
			Help:    "Duration of compliance record reads",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncRegistration(outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncUpdate(action string) {
	if m == nil {
		return
	}
	m.Updates.WithLabelValues(action).Inc()
}

// ObserveLookup records the duration of a record read started at start.
func (m *Metrics) ObserveLookup(start time.Time) {
	if m == nil {
		return
	}
	m.LookupDuration.Observe(time.Since(start).Seconds())
}
