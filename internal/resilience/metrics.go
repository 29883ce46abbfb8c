package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BreakerState exposes the current state per target: 0=closed, 1=open, 2=half-open.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breaker_state",
			Help: "Current breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	// BreakerTransitions counts state changes per target.
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_transition_total",
			Help: "Count of breaker state transitions",
		},
		[]string{"target", "from", "to"},
	)
	// HTTPAttempts counts outbound attempts made by HTTPClient.
	HTTPAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downstream_http_attempts_total",
			Help: "Outbound HTTP attempts by target and result",
		},
		[]string{"target", "result"},
	)
)

// RegisterMetrics registers the resilience collectors with reg. Registering twice is a no-op.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions, HTTPAttempts} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

func setStateGauge(target string, state State) {
	value := float64(state)
	if state != Closed && state != Open && state != HalfOpen {
		value = -1
	}
	BreakerState.WithLabelValues(target).Set(value)
}

func recordTransition(target string, from, to State) {
	BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
}
