package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OptimizationsTotal counts optimize pipeline runs by strategy and outcome.
	OptimizationsTotal *prometheus.CounterVec
	// OptimizationDuration records end-to-end optimize latency in milliseconds.
	OptimizationDuration prometheus.Histogram
	// RouteStops records how many stores a computed route visits.
	RouteStops prometheus.Histogram
	// UpstreamFallbackTotal counts collaborator failures answered with a fallback.
	UpstreamFallbackTotal *prometheus.CounterVec
	// PricingClampedTotal counts totals that went negative and were clamped to zero.
	PricingClampedTotal prometheus.Counter
	// CartSyncTotal counts cart sync outcomes.
	CartSyncTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OptimizationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimizations_total",
			Help:      "Count of cart optimization runs by strategy and result.",
		}, []string{"strategy", "result"}))
		OptimizationDuration = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "optimization_duration_ms",
			Help:      "Latency of the optimize pipeline in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}))
		RouteStops = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_stops",
			Help:      "Number of stores visited per computed route.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12},
		}))
		UpstreamFallbackTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fallback_total",
			Help:      "Collaborator failures answered with last-known-good state.",
		}, []string{"target"}))
		PricingClampedTotal = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_clamped_total",
			Help:      "Final totals clamped to zero after discounts exceeded the subtotal.",
		}))
		CartSyncTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_sync_total",
			Help:      "Count of cart sync outcomes.",
		}, []string{"result"}))
	})
}

// RecordFallback increments the fallback counter for target when metrics are registered.
func RecordFallback(target string) {
	if UpstreamFallbackTotal == nil {
		return
	}
	UpstreamFallbackTotal.WithLabelValues(target).Inc()
}
