package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for company search and lookup.
type Metrics struct {
	SearchLatency *prometheus.HistogramVec
	SearchResults prometheus.Histogram
	TierHits      *prometheus.CounterVec
	Lookups       *prometheus.CounterVec
}

// New creates a new Metrics instance with all search metrics registered.
func New() *Metrics {
	return &Metrics{
		SearchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bizreg_search_duration_seconds",
			Help:    "Search latency by query kind",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}, []string{"kind"}),

		SearchResults: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bizreg_search_results",
			Help:    "Number of results returned per search",
			Buckets: []float64{0, 1, 5, 10, 20, 50},
		}),

		TierHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizreg_search_tier_hits_total",
			Help: "Returned name-search results by match tier",
		}, []string{"tier"}),

		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bizreg_company_lookups_total",
			Help: "Identifier lookups by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(kind string, results int, d time.Duration) {
	if m != nil {
		m.SearchLatency.WithLabelValues(kind).Observe(d.Seconds())
		m.SearchResults.Observe(float64(results))
	}
}

// IncTier records a returned hit of the given tier.
func (m *Metrics) IncTier(tier string) {
	if m != nil {
		m.TierHits.WithLabelValues(tier).Inc()
	}
}

// IncLookup records an identifier lookup outcome ("found", "not_found", "error").
func (m *Metrics) IncLookup(outcome string) {
	if m != nil {
		m.Lookups.WithLabelValues(outcome).Inc()
	}
}
