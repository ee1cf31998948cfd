package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks order placement, payment reconciliation and gateway latency.
// A nil receiver is a no-op so services can run without a registry.
type CheckoutMetrics struct {
	ordersPlaced    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	notifyFailures  prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on reg.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	ordersPlaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "orders_placed_total",
		Help:      "Checkout submissions by result.",
	}, []string{"result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "order_transitions_total",
		Help:      "Order status transition attempts by source and outcome.",
	}, []string{"source", "outcome"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "gateway_request_duration_seconds",
		Help:      "Latency of payment gateway calls.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation", "result"})
	notifyFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "notification_failures_total",
		Help:      "Order confirmation dispatches that failed.",
	})
	reg.MustRegister(ordersPlaced, transitions, gatewayDuration, notifyFailures)
	return &CheckoutMetrics{
		ordersPlaced:    ordersPlaced,
		transitions:     transitions,
		gatewayDuration: gatewayDuration,
		notifyFailures:  notifyFailures,
	}
}

// IncOrderPlaced counts a checkout attempt with the given result label.
func (m *CheckoutMetrics) IncOrderPlaced(result string) {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncTransition counts a status transition attempt.
func (m *CheckoutMetrics) IncTransition(source, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// ObserveGateway records the duration of a gateway call.
func (m *CheckoutMetrics) ObserveGateway(operation, result string, d time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Observe(d.Seconds())
}

// IncNotificationFailure counts a swallowed notification error.
func (m *CheckoutMetrics) IncNotificationFailure() {
	if m == nil || m.notifyFailures == nil {
		return
	}
	m.notifyFailures.Inc()
}
