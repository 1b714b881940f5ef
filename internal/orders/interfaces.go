package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
)

// Repository defines the order reads and the payment-state write the ledger needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// LockByID re-reads the order with SELECT ... FOR UPDATE. Only meaningful inside a transaction.
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	UpdatePaymentState(ctx context.Context, id uuid.UUID, status enums.OrderStatus, paidAt *time.Time) error
}
