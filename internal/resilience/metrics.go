package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "shopopt"

// Breaker collectors, labelled by guarded collaborator. They live on the
// default registry next to the HTTP metrics.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "breaker_state",
		Help:      "Breaker state per collaborator (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "breaker_transition_total",
		Help:      "Breaker state changes by collaborator and edge.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "breaker_open_total",
		Help:      "Times a collaborator's breaker tripped open.",
	}, []string{"target"})
)

func init() {
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions, BreakerOpenedTotal} {
		var dup prometheus.AlreadyRegisteredError
		if err := prometheus.Register(c); err != nil && !errors.As(err, &dup) {
			panic(err)
		}
	}
}
