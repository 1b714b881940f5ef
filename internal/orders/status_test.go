package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/internal/ledger"
	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

func snapshot(grandTotal string, paid []string, refunded []string) ledger.Snapshot {
	payments := make([]models.Payment, 0, len(paid))
	for _, p := range paid {
		payments = append(payments, models.Payment{Amount: money.MustParse(p)})
	}
	refunds := make([]models.Refund, 0, len(refunded))
	for _, r := range refunded {
		refunds = append(refunds, models.Refund{Amount: money.MustParse(r)})
	}
	return ledger.Compute(uuid.New(), money.MustParse(grandTotal), payments, refunds)
}

func TestNextPaymentState(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name        string
		current     enums.OrderStatus
		paidAt      *time.Time
		snap        ledger.Snapshot
		wantStatus  enums.OrderStatus
		wantPaidAt  *time.Time
		wantChanged bool
	}{
		{
			name:        "nothing paid stays open",
			current:     enums.OrderStatusOpen,
			snap:        snapshot("100", nil, nil),
			wantStatus:  enums.OrderStatusOpen,
			wantChanged: false,
		},
		{
			name:        "first partial payment",
			current:     enums.OrderStatusOpen,
			snap:        snapshot("100", []string{"40"}, nil),
			wantStatus:  enums.OrderStatusPartiallyPaid,
			wantChanged: true,
		},
		{
			name:        "settled stamps now",
			current:     enums.OrderStatusPartiallyPaid,
			snap:        snapshot("100", []string{"40", "60"}, nil),
			wantStatus:  enums.OrderStatusPaid,
			wantPaidAt:  &now,
			wantChanged: true,
		},
		{
			name:        "already paid keeps paid_at",
			current:     enums.OrderStatusPaid,
			paidAt:      &earlier,
			snap:        snapshot("100", []string{"100"}, nil),
			wantStatus:  enums.OrderStatusPaid,
			wantPaidAt:  &earlier,
			wantChanged: false,
		},
		{
			name:        "refund reverts paid",
			current:     enums.OrderStatusPaid,
			paidAt:      &earlier,
			snap:        snapshot("100", []string{"100"}, []string{"10"}),
			wantStatus:  enums.OrderStatusPartiallyPaid,
			wantChanged: true,
		},
		{
			name:        "full refund keeps partially paid",
			current:     enums.OrderStatusPaid,
			paidAt:      &earlier,
			snap:        snapshot("100", []string{"100"}, []string{"100"}),
			wantStatus:  enums.OrderStatusPartiallyPaid,
			wantChanged: true,
		},
		{
			name:        "zero total order without payments stays open",
			current:     enums.OrderStatusOpen,
			snap:        snapshot("0", nil, nil),
			wantStatus:  enums.OrderStatusOpen,
			wantChanged: false,
		},
		{
			name:        "cancelled is untouched",
			current:     enums.OrderStatusCancelled,
			snap:        snapshot("100", []string{"100"}, nil),
			wantStatus:  enums.OrderStatusCancelled,
			wantChanged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, paidAt, changed := NextPaymentState(tt.current, tt.paidAt, tt.snap, now)
			if status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s", tt.wantStatus, status)
			}
			if changed != tt.wantChanged {
				t.Fatalf("expected changed=%v, got %v", tt.wantChanged, changed)
			}
			switch {
			case tt.wantPaidAt == nil && paidAt != nil:
				t.Fatalf("expected nil paid_at, got %v", paidAt)
			case tt.wantPaidAt != nil && (paidAt == nil || !paidAt.Equal(*tt.wantPaidAt)):
				t.Fatalf("expected paid_at %v, got %v", tt.wantPaidAt, paidAt)
			}
		})
	}
}

type stubRepo struct {
	updates      int
	lastStatus   enums.OrderStatus
	lastPaidAt   *time.Time
	updateErr    error
	findByID     func(ctx context.Context, id uuid.UUID) (*models.Order, error)
	lockByID     func(ctx context.Context, id uuid.UUID) (*models.Order, error)
	listItemsErr error
}

func (s *stubRepo) WithTx(*gorm.DB) Repository { return s }

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.findByID != nil {
		return s.findByID(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.lockByID != nil {
		return s.lockByID(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRepo) ListItems(context.Context, uuid.UUID) ([]models.OrderItem, error) {
	return nil, s.listItemsErr
}

func (s *stubRepo) UpdatePaymentState(_ context.Context, _ uuid.UUID, status enums.OrderStatus, paidAt *time.Time) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates++
	s.lastStatus = status
	s.lastPaidAt = paidAt
	return nil
}

func TestStatusSynchronizerIsIdempotent(t *testing.T) {
	first := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	clock := first
	sync := NewStatusSynchronizerWithClock(func() time.Time { return clock })
	repo := &stubRepo{}
	order := &models.Order{ID: uuid.New(), Status: enums.OrderStatusPartiallyPaid}
	snap := snapshot("100", []string{"40", "60"}, nil)

	transition, err := sync.Sync(context.Background(), repo, order, snap)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !transition.BecamePaid() {
		t.Fatalf("expected transition to paid, got %+v", transition)
	}
	if order.Status != enums.OrderStatusPaid || order.PaidAt == nil || !order.PaidAt.Equal(first) {
		t.Fatalf("order not updated in place: %+v", order)
	}

	clock = first.Add(time.Hour)
	transition, err = sync.Sync(context.Background(), repo, order, snap)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if transition.Changed || transition.BecamePaid() {
		t.Fatalf("second sync should be a no-op, got %+v", transition)
	}
	if repo.updates != 1 {
		t.Fatalf("expected exactly one write, got %d", repo.updates)
	}
	if !order.PaidAt.Equal(first) {
		t.Fatalf("paid_at moved to %v", order.PaidAt)
	}
}

func TestStatusSynchronizerPropagatesWriteErrors(t *testing.T) {
	sync := NewStatusSynchronizer()
	repo := &stubRepo{updateErr: errors.New("boom")}
	order := &models.Order{ID: uuid.New(), Status: enums.OrderStatusOpen}

	if _, err := sync.Sync(context.Background(), repo, order, snapshot("10", []string{"5"}, nil)); err == nil {
		t.Fatal("expected error")
	}
	if order.Status != enums.OrderStatusOpen {
		t.Fatalf("order must not change on failed write, got %s", order.Status)
	}
}
