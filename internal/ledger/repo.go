package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/pkg/db"
	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tablepay-backend/pkg/errors"
)

// PaymentRepository persists append-only payment rows.
type PaymentRepository interface {
	WithTx(tx *gorm.DB) PaymentRepository
	Create(ctx context.Context, payment *models.Payment) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

// RefundRepository persists append-only refund rows.
type RefundRepository interface {
	WithTx(tx *gorm.DB) RefundRepository
	Create(ctx context.Context, refund *models.Refund) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository returns a payment repository bound to the provided database.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) WithTx(tx *gorm.DB) PaymentRepository {
	if tx == nil {
		return r
	}
	return &paymentRepository{db: tx}
}

func (r *paymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return insertErr(r.db.WithContext(ctx).Create(payment).Error, "payment")
}

// ListByOrderID returns live payments oldest first. Soft-deleted rows are
// filtered by gorm's DeletedAt scope.
func (r *paymentRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

type refundRepository struct {
	db *gorm.DB
}

// NewRefundRepository returns a refund repository bound to the provided database.
func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &refundRepository{db: db}
}

func (r *refundRepository) WithTx(tx *gorm.DB) RefundRepository {
	if tx == nil {
		return r
	}
	return &refundRepository{db: tx}
}

func (r *refundRepository) Create(ctx context.Context, refund *models.Refund) error {
	return insertErr(r.db.WithContext(ctx).Create(refund).Error, "refund")
}

// insertErr turns a primary key collision into a conflict; rows are append-only.
func insertErr(err error, kind string) error {
	if err != nil && db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, kind+" already recorded")
	}
	return err
}

func (r *refundRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	var refunds []models.Refund
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&refunds).Error; err != nil {
		return nil, err
	}
	return refunds, nil
}
