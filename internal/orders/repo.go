package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListItems returns the order's active lines oldest first. Voided lines are skipped.
func (r *repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.OrderItemStatusActive).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UpdatePaymentState(ctx context.Context, id uuid.UUID, status enums.OrderStatus, paidAt *time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"paid_at":    paidAt,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CandidateFinder selects orders whose stored payment state may have drifted
// from the ledger.
type CandidateFinder struct {
	db *gorm.DB
}

func NewCandidateFinder(db *gorm.DB) *CandidateFinder {
	return &CandidateFinder{db: db}
}

// ListReconcileCandidates returns non-cancelled orders with a payment row
// created, updated, or soft-deleted since the cutoff, oldest change first.
func (f *CandidateFinder) ListReconcileCandidates(ctx context.Context, since time.Time, limit int) ([]uuid.UUID, error) {
	touched := f.db.
		Unscoped().
		Model(&models.Payment{}).
		Select("order_id").
		Where("updated_at >= ? OR deleted_at >= ?", since, since)

	var ids []uuid.UUID
	err := f.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status <> ?", enums.OrderStatusCancelled).
		Where("id IN (?)", touched).
		Order("updated_at ASC").
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
