package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestLedgerMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.ObserveDuration("record_payment", 40*time.Millisecond)
	m.IncPayment("cash", "")
	m.IncPayment("card", "even")
	m.IncRejected("record_payment", "OVERPAYMENT")
	m.IncRefund()
	m.IncOrderPaid()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "ledger_payments_recorded_total", "split_type", "none"); err != nil || got != 1 {
		t.Fatalf("expected one plain payment, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "ledger_payments_recorded_total", "split_type", "even"); err != nil || got != 1 {
		t.Fatalf("expected one split payment, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "ledger_mutations_rejected_total", "reason", "OVERPAYMENT"); err != nil || got != 1 {
		t.Fatalf("expected one rejection, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "ledger_operation_duration_seconds", "operation", "record_payment"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
	if mf := findMetricFamily(mfs, "ledger_orders_paid_total"); mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected orders paid counter at 1")
	}
}

func TestOutboxMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.ObserveBatch(time.Millisecond)
	m.IncPublished("payment_recorded")
	m.IncPublished("payment_recorded")
	m.IncFailed("order_paid")
	m.IncDeadLettered("order_paid", "max_attempts")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_published_total", "event_type", "payment_recorded"); err != nil || got != 2 {
		t.Fatalf("expected published=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_dead_lettered_total", "reason", "max_attempts"); err != nil || got != 1 {
		t.Fatalf("expected dead lettered=1, got %f (%v)", got, err)
	}
}

func TestMaintenanceMetricsExportsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMaintenanceMetrics(reg)
	m.ObserveDuration("outbox-retention", 5*time.Millisecond)
	m.IncSuccess("outbox-retention")
	m.IncFailure("payment-status-reconcile")
	m.IncReconciled("open")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "maintenance_job_runs_total", "result", "failure"); err != nil || got != 1 {
		t.Fatalf("expected one failed run, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "maintenance_orders_reconciled_total", "to_status", "open"); err != nil || got != 1 {
		t.Fatalf("expected one reconciled order, got %f (%v)", got, err)
	}
	if _, err := fetchHistogramSum(mfs, "maintenance_job_duration_seconds", "job", "outbox-retention"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	var ledger *LedgerMetrics
	ledger.IncRefund()
	NewLedgerMetrics(nil).IncPayment("cash", "")
	NewOutboxMetrics(nil).IncPublished("x")
	NewMaintenanceMetrics(nil).IncReconciled("paid")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
