package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

// Refund is an append-only record of money returned to a guest.
type Refund struct {
	ID         uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID   `gorm:"column:order_id;type:uuid;not null;index"`
	Amount     money.Money `gorm:"column:amount;type:numeric(12,2);not null"`
	Reason     *string     `gorm:"column:reason"`
	RefundedBy *uuid.UUID  `gorm:"column:refunded_by;type:uuid"`
	CreatedAt  time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
