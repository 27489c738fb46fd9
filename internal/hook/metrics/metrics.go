package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution outcomes.
const (
	OutcomeNoHook   = "no_hook"
	OutcomeResolved = "resolved"
	OutcomeFailed   = "failed"

	OutcomeProvisioned = "provisioned"
	OutcomeConcurrent  = "concurrent"
)

// Metrics covers transfer-hook resolution and meta list provisioning.
type Metrics struct {
	Resolutions   *prometheus.CounterVec
	Provisionings *prometheus.CounterVec
	CacheLookups  *prometheus.CounterVec
	ExtraAccounts prometheus.Histogram
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srwa_hook_resolutions_total",
			Help: "Transfer instructions passed through the resolver by outcome",
		}, []string{"outcome"}),
		Provisionings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srwa_hook_meta_list_provisionings_total",
			Help: "Meta list initialization attempts by outcome",
		}, []string{"outcome"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "srwa_hook_mint_cache_lookups_total",
			Help: "Mint state cache lookups by result",
		}, []string{"result"}),
		ExtraAccounts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "srwa_hook_extra_accounts",
			Help:    "Number of extra accounts resolved per transfer",
			Buckets: prometheus.LinearBuckets(0, 1, 9),
		}),
	}
}

func (m *Metrics) IncResolution(outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncProvisioning(outcome string) {
	if m == nil {
		return
	}
	m.Provisionings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveExtraAccounts(n int) {
	if m == nil {
		return
	}
	m.ExtraAccounts.Observe(float64(n))
}
