package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Order transitions.
const (
	ActionCreate  = "create"
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Transition outcomes.
const (
	OutcomeSucceeded        = "succeeded"
	OutcomeAlreadyFinalized = "already_finalized"
	OutcomeFailed           = "failed"
)

type Metrics struct {
	Transitions *prometheus.CounterVec
	Escrowed    prometheus.Counter
	Refunded    prometheus.Counter
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srwa_order_transitions_total",
			Help: "Purchase order transitions by action and outcome",
		}, []string{"action", "outcome"}),
		Escrowed: f.NewCounter(prometheus.CounterOpts{
			Name: "srwa_order_escrowed_lamports_total",
			Help: "Lamports escrowed by created orders",
		}),
		Refunded: f.NewCounter(prometheus.CounterOpts{
			Name: "srwa_order_refunded_lamports_total",
			Help: "Lamports refunded by rejected orders",
		}),
	}
}

func (m *Metrics) IncTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) AddEscrowed(lamports uint64) {
	if m == nil {
		return
	}
	m.Escrowed.Add(float64(lamports))
}

func (m *Metrics) AddRefunded(lamports uint64) {
	if m == nil {
		return
	}
	m.Refunded.Add(float64(lamports))
}
