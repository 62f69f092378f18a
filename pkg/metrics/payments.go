package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts payment intent outcomes per processor.
type PaymentMetrics struct {
	intents *prometheus.CounterVec
	refunds *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	m := &PaymentMetrics{
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intents_total",
			Help:      "Payment intents by processor and outcome.",
		}, []string{"processor", "outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refunds issued by processor and outcome.",
		}, []string{"processor", "outcome"}),
	}
	reg.MustRegister(m.intents, m.refunds)
	return m
}

// IncIntent records an intent transition such as created, succeeded or failed.
func (m *PaymentMetrics) IncIntent(processor, outcome string) {
	if m == nil || m.intents == nil {
		return
	}
	m.intents.WithLabelValues(normalizeLabel(processor), normalizeLabel(outcome)).Inc()
}

func (m *PaymentMetrics) IncRefund(processor, outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(processor), normalizeLabel(outcome)).Inc()
}
