package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics records ledger maintenance job runs.
type MaintenanceMetrics struct {
	duration   *prometheus.HistogramVec
	runs       *prometheus.CounterVec
	reconciled *prometheus.CounterVec
}

func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of ledger maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Ledger maintenance job runs by result.",
	}, []string{"job", "result"})
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_orders_reconciled_total",
		Help: "Orders whose payment status was rewritten by reconciliation.",
	}, []string{"to_status"})
	reg.MustRegister(duration, runs, reconciled)
	return &MaintenanceMetrics{duration: duration, runs: runs, reconciled: reconciled}
}

func (m *MaintenanceMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(d.Seconds())
}

func (m *MaintenanceMetrics) IncSuccess(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), "success").Inc()
}

func (m *MaintenanceMetrics) IncFailure(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), "failure").Inc()
}

// IncReconciled counts an order moved to toStatus by reconciliation.
func (m *MaintenanceMetrics) IncReconciled(toStatus string) {
	if m == nil || m.reconciled == nil {
		return
	}
	m.reconciled.WithLabelValues(normalizeLabel(toStatus)).Inc()
}
