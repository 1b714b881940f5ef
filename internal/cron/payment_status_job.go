package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepay-backend/internal/orders"
	"github.com/angelmondragon/tablepay-backend/pkg/logger"
	"github.com/angelmondragon/tablepay-backend/pkg/metrics"
)

const (
	defaultReconcileLookback = time.Hour
	defaultReconcileBatch    = 200
)

type candidateFinder interface {
	ListReconcileCandidates(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error)
}

type statusReconciler interface {
	ReconcileOrderStatus(ctx context.Context, orderID uuid.UUID) (orders.Transition, error)
}

type PaymentStatusJobParams struct {
	Logger     *logger.Logger
	Candidates candidateFinder
	Reconciler statusReconciler
	Metrics    *metrics.MaintenanceMetrics
	// Lookback should exceed the worker interval so no change falls between runs.
	Lookback  time.Duration
	BatchSize int
}

// NewPaymentStatusJob rewrites order status for orders whose payments changed
// outside the ledger, typically a payment voided by the order workflow.
func NewPaymentStatusJob(params PaymentStatusJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Candidates == nil {
		return nil, fmt.Errorf("candidate finder required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &paymentStatusJob{
		logg:       params.Logger,
		candidates: params.Candidates,
		reconciler: params.Reconciler,
		metrics:    params.Metrics,
		lookback:   lookback,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type paymentStatusJob struct {
	logg       *logger.Logger
	candidates candidateFinder
	reconciler statusReconciler
	metrics    *metrics.MaintenanceMetrics
	lookback   time.Duration
	batch      int
	now        func() time.Time
}

func (j *paymentStatusJob) Name() string { return "payment-status-reconcile" }

// Run reconciles each candidate on its own transaction. One failing order does
// not stop the batch; the first error is returned after every order was tried.
func (j *paymentStatusJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.lookback)
	ids, err := j.candidates.ListReconcileCandidates(ctx, since, j.batch)
	if err != nil {
		return fmt.Errorf("list reconcile candidates: %w", err)
	}

	var (
		firstErr error
		changed  int
	)
	for _, id := range ids {
		transition, err := j.reconciler.ReconcileOrderStatus(ctx, id)
		if err != nil {
			j.logg.Error(j.logg.WithOrderID(ctx, id.String()), "reconcile order status", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("reconcile order %s: %w", id, err)
			}
			continue
		}
		if transition.Changed {
			changed++
			j.metrics.IncReconciled(transition.To.String())
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"since":      since,
		"candidates": len(ids),
		"changed":    changed,
	}), "payment status reconciliation complete")
	return firstErr
}
