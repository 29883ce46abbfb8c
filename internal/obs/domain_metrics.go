package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentWebhookTotal counts inbound payment webhooks by event type and outcome.
	PaymentWebhookTotal *prometheus.CounterVec
	// PaymentVerifyTotal counts client-initiated verification outcomes.
	PaymentVerifyTotal *prometheus.CounterVec
	// EntitlementGrantTotal counts downstream entitlement calls by backend and result.
	EntitlementGrantTotal *prometheus.CounterVec
	// EntitlementGrantLatency records downstream entitlement latency in milliseconds.
	EntitlementGrantLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
// Only the first call has an effect.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentWebhookTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"event", "result"}))
		PaymentVerifyTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verify_total",
			Help:      "Count of client payment verifications by outcome.",
		}, []string{"result"}))
		EntitlementGrantTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_grant_total",
			Help:      "Count of entitlement grants sent to the account store.",
		}, []string{"backend", "result"}))
		EntitlementGrantLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entitlement_grant_duration_ms",
			Help:      "Latency of entitlement grants in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"backend"}))
	})
}

// ObserveWebhook increments the webhook counter when domain metrics are registered.
func ObserveWebhook(event, result string) {
	if PaymentWebhookTotal != nil {
		PaymentWebhookTotal.WithLabelValues(EventLabel(event), result).Inc()
	}
}

// ObserveVerify increments the verify counter when domain metrics are registered.
func ObserveVerify(result string) {
	if PaymentVerifyTotal != nil {
		PaymentVerifyTotal.WithLabelValues(result).Inc()
	}
}

// EventLabel bounds the cardinality of event-type labels.
func EventLabel(value string) string {
	switch value {
	case "":
		return "unknown"
	case "payment.captured", "payment.authorized", "payment.failed", "order.paid", "refund.created", "refund.processed":
		return value
	default:
		return "other"
	}
}
