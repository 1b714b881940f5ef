package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/internal/ledger"
	"github.com/angelmondragon/tablepay-backend/internal/orders"
	"github.com/angelmondragon/tablepay-backend/internal/split"
	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	"github.com/angelmondragon/tablepay-backend/pkg/outbox"
)

// PermissionChecker decides whether an actor may act on a store.
type PermissionChecker interface {
	CheckStorePermission(ctx context.Context, actorID, storeID uuid.UUID, roles ...enums.MemberRole) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type statusSyncer interface {
	Sync(ctx context.Context, repo orders.Repository, order *models.Order, snap ledger.Snapshot) (orders.Transition, error)
}

// Service is the payment ledger: every operation that records, lists, or
// summarizes money movement on an order.
type Service interface {
	RecordPayment(ctx context.Context, actorID, orderID uuid.UUID, input RecordPaymentInput) (*models.Payment, error)
	RecordSplitPayment(ctx context.Context, actorID, orderID uuid.UUID, input RecordSplitPaymentInput) (*models.Payment, error)
	CreateRefund(ctx context.Context, actorID, orderID uuid.UUID, input CreateRefundInput) (*models.Refund, error)
	FindPaymentsByOrder(ctx context.Context, actorID, orderID uuid.UUID) ([]models.Payment, error)
	FindRefundsByOrder(ctx context.Context, actorID, orderID uuid.UUID) ([]models.Refund, error)
	GetPaymentSummary(ctx context.Context, actorID, orderID uuid.UUID) (*ledger.Summary, error)
	CalculateSplitAmounts(ctx context.Context, actorID, orderID uuid.UUID, req split.Request) (*SplitPreview, error)
}

// Reconciler repairs the stored order status without an acting staff member.
type Reconciler interface {
	ReconcileOrderStatus(ctx context.Context, orderID uuid.UUID) (orders.Transition, error)
}
