package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

// Order is a dine-in bill. The order workflow owns it; the payment ledger only
// reads GrandTotal and writes Status/PaidAt.
type Order struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	StoreID    uuid.UUID         `gorm:"column:store_id;type:uuid;not null"`
	TableRef   *string           `gorm:"column:table_ref"`
	GrandTotal money.Money       `gorm:"column:grand_total;type:numeric(12,2);not null"`
	Status     enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:open"`
	PaidAt     *time.Time        `gorm:"column:paid_at"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}
