package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts payment ledger mutations and how long they take.
type LedgerMetrics struct {
	duration *prometheus.HistogramVec
	payments *prometheus.CounterVec
	refunds  prometheus.Counter
	rejected *prometheus.CounterVec
	paid     prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer. A
// nil registerer yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Duration of payment ledger operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_payments_recorded_total",
		Help: "Payments recorded against orders.",
	}, []string{"method", "split_type"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_refunds_created_total",
		Help: "Refunds created against orders.",
	})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_mutations_rejected_total",
		Help: "Ledger mutations rejected by a business rule.",
	}, []string{"operation", "reason"})
	paid := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_orders_paid_total",
		Help: "Orders that transitioned to paid.",
	})
	reg.MustRegister(duration, payments, refunds, rejected, paid)
	return &LedgerMetrics{
		duration: duration,
		payments: payments,
		refunds:  refunds,
		rejected: rejected,
		paid:     paid,
	}
}

// ObserveDuration records how long operation took.
func (m *LedgerMetrics) ObserveDuration(operation string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(d.Seconds())
}

// IncPayment counts a recorded payment. splitType is empty for plain payments.
func (m *LedgerMetrics) IncPayment(method, splitType string) {
	if m == nil || m.payments == nil {
		return
	}
	if splitType == "" {
		splitType = "none"
	}
	m.payments.WithLabelValues(normalizeLabel(method), splitType).Inc()
}

// IncRefund counts a created refund.
func (m *LedgerMetrics) IncRefund() {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.Inc()
}

// IncRejected counts a mutation refused with a reason such as OVERPAYMENT.
func (m *LedgerMetrics) IncRejected(operation, reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(operation), normalizeLabel(reason)).Inc()
}

// IncOrderPaid counts an order reaching paid.
func (m *LedgerMetrics) IncOrderPaid() {
	if m == nil || m.paid == nil {
		return
	}
	m.paid.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
