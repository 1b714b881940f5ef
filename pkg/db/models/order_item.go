package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

// OrderItemCustomization is a priced modifier captured when the item was ordered.
type OrderItemCustomization struct {
	Name  string      `json:"name"`
	Price money.Money `json:"price"`
}

// OrderItem is a line on an order with prices frozen at order time.
type OrderItem struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	Name           string                   `gorm:"column:name;not null"`
	UnitPrice      money.Money              `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity       int                      `gorm:"column:quantity;not null;default:1"`
	Customizations []OrderItemCustomization `gorm:"column:customizations;type:jsonb;serializer:json"`
	Status         enums.OrderItemStatus    `gorm:"column:status;type:order_item_status;not null;default:active"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// LineTotal is (unit price + customizations) * quantity.
func (i OrderItem) LineTotal() money.Money {
	unit := i.UnitPrice
	for _, c := range i.Customizations {
		unit = unit.Add(c.Price)
	}
	return unit.MulInt(int64(i.Quantity))
}
