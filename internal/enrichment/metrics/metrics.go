package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for downstream enrichment calls.
type Metrics struct {
	ProviderLatency *prometheus.HistogramVec
	ProviderErrors  *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	Degraded        *prometheus.CounterVec
}

// New creates a new Metrics instance with all enrichment metrics registered.
func New() *Metrics {
	return &Metrics{
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bizreg_enrichment_provider_duration_seconds",
			Help:    "Downstream provider latency, retries included",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"provider"}),

		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizreg_enrichment_provider_errors_total",
			Help: "Failed provider lookups by error category",
		}, []string{"provider", "category"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizreg_enrichment_cache_lookups_total",
			Help: "Enrichment cache lookups by result",
		}, []string{"provider", "result"}),

		Degraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizreg_enrichment_degraded_total",
			Help: "Detail responses missing a field",
		}, []string{"field"}),
	}
}

func (m *Metrics) ObserveProvider(provider string, d time.Duration) {
	if m != nil {
		m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
	}
}

func (m *Metrics) IncProviderError(provider, category string) {
	if m != nil {
		m.ProviderErrors.WithLabelValues(provider, category).Inc()
	}
}

// IncCache records a cache "hit" or "miss".
func (m *Metrics) IncCache(provider, result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(provider, result).Inc()
	}
}

func (m *Metrics) IncDegraded(field string) {
	if m != nil {
		m.Degraded.WithLabelValues(field).Inc()
	}
}
