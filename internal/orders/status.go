package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tablepay-backend/internal/ledger"
	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
)

// Transition describes the outcome of a status evaluation.
type Transition struct {
	From    enums.OrderStatus
	To      enums.OrderStatus
	PaidAt  *time.Time
	Changed bool
}

// BecamePaid reports whether the order just reached PAID from another state.
func (t Transition) BecamePaid() bool {
	return t.Changed && t.To == enums.OrderStatusPaid && t.From != enums.OrderStatusPaid
}

// NextPaymentState derives the order status from a snapshot. A cancelled order
// is returned unchanged. paidAt is kept when the order was already paid, stamped
// with now when it becomes paid, and cleared otherwise.
func NextPaymentState(current enums.OrderStatus, paidAt *time.Time, snap ledger.Snapshot, now time.Time) (enums.OrderStatus, *time.Time, bool) {
	if current.IsTerminal() {
		return current, paidAt, false
	}

	var (
		next       enums.OrderStatus
		nextPaidAt *time.Time
	)
	switch {
	case snap.IsFullyPaid && snap.PaymentCount > 0:
		next = enums.OrderStatusPaid
		if paidAt != nil {
			nextPaidAt = paidAt
		} else {
			stamp := now.UTC()
			nextPaidAt = &stamp
		}
	case snap.TotalPaid.IsPositive():
		next = enums.OrderStatusPartiallyPaid
	default:
		next = enums.OrderStatusOpen
	}

	changed := next != current || (paidAt == nil) != (nextPaidAt == nil)
	return next, nextPaidAt, changed
}

// StatusSynchronizer keeps orders.status and orders.paid_at in line with the ledger.
type StatusSynchronizer struct {
	now func() time.Time
}

// NewStatusSynchronizer returns a synchronizer using the wall clock.
func NewStatusSynchronizer() *StatusSynchronizer {
	return &StatusSynchronizer{now: time.Now}
}

// NewStatusSynchronizerWithClock is used by tests that need a fixed time.
func NewStatusSynchronizerWithClock(now func() time.Time) *StatusSynchronizer {
	if now == nil {
		now = time.Now
	}
	return &StatusSynchronizer{now: now}
}

// Sync evaluates the order against snap and writes through repo when the state
// changed. order is updated in place so callers see the committed values.
func (s *StatusSynchronizer) Sync(ctx context.Context, repo Repository, order *models.Order, snap ledger.Snapshot) (Transition, error) {
	if order == nil {
		return Transition{}, fmt.Errorf("order is required")
	}
	next, paidAt, changed := NextPaymentState(order.Status, order.PaidAt, snap, s.now())
	transition := Transition{From: order.Status, To: next, PaidAt: paidAt, Changed: changed}
	if !changed {
		return transition, nil
	}
	if err := repo.UpdatePaymentState(ctx, order.ID, next, paidAt); err != nil {
		return Transition{}, fmt.Errorf("update order payment state: %w", err)
	}
	order.Status = next
	order.PaidAt = paidAt
	return transition, nil
}
