package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Distribution outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeReplayed  = "replayed"
	OutcomeInFlight  = "in_flight"
	OutcomePending   = "pending"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	Distributions *prometheus.CounterVec
	Duration      prometheus.Histogram
	BaseUnits     *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Distributions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srwa_distributions_total",
			Help: "Distribute calls by outcome",
		}, []string{"outcome"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "srwa_distribution_duration_seconds",
			Help:    "End-to-end duration of a distribution including confirmation",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		BaseUnits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srwa_distributed_base_units_total",
			Help: "Base units delivered by mint",
		}, []string{"mint"}),
	}
}

func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Distributions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDuration(start time.Time) {
	if m == nil {
		return
	}
	m.Duration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddDelivered(mint string, amount uint64) {
	if m == nil {
		return
	}
	m.BaseUnits.WithLabelValues(mint).Add(float64(amount))
}
