package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

// Payment is an append-only record of money received against an order.
// Rows are soft-deleted by the order workflow and never updated by the ledger.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Amount         money.Money         `gorm:"column:amount;type:numeric(12,2);not null"`
	Method         enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	AmountTendered *money.Money        `gorm:"column:amount_tendered;type:numeric(12,2)"`
	ChangeGiven    *money.Money        `gorm:"column:change_given;type:numeric(12,2)"`
	TransactionID  *string             `gorm:"column:transaction_id"`
	Notes          *string             `gorm:"column:notes"`
	SplitType      *enums.SplitType    `gorm:"column:split_type;type:split_type"`
	SplitMetadata  json.RawMessage     `gorm:"column:split_metadata;type:jsonb"`
	GuestNumber    *int                `gorm:"column:guest_number"`
	RecordedBy     *uuid.UUID          `gorm:"column:recorded_by;type:uuid"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt      gorm.DeletedAt      `gorm:"column:deleted_at;index"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
