package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

// PaymentRecordedEvent is emitted for every payment row, split or not.
type PaymentRecordedEvent struct {
	PaymentID        uuid.UUID           `json:"payment_id"`
	OrderID          uuid.UUID           `json:"order_id"`
	StoreID          uuid.UUID           `json:"store_id"`
	Amount           money.Money         `json:"amount"`
	Method           enums.PaymentMethod `json:"method"`
	SplitType        *enums.SplitType    `json:"split_type,omitempty"`
	GuestNumber      *int                `json:"guest_number,omitempty"`
	RemainingBalance money.Money         `json:"remaining_balance"`
}

// RefundCreatedEvent is emitted for every refund row.
type RefundCreatedEvent struct {
	RefundID         uuid.UUID   `json:"refund_id"`
	OrderID          uuid.UUID   `json:"order_id"`
	StoreID          uuid.UUID   `json:"store_id"`
	Amount           money.Money `json:"amount"`
	Reason           *string     `json:"reason,omitempty"`
	RemainingBalance money.Money `json:"remaining_balance"`
}

// OrderPaidEvent fires when an order reaches PAID from another state.
type OrderPaidEvent struct {
	OrderID    uuid.UUID   `json:"order_id"`
	StoreID    uuid.UUID   `json:"store_id"`
	GrandTotal money.Money `json:"grand_total"`
	PaidAt     time.Time   `json:"paid_at"`
}

// OrderPaymentStateChangedEvent covers every other status move driven by the ledger.
type OrderPaymentStateChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	StoreID    uuid.UUID         `json:"store_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	NetPaid    money.Money       `json:"net_paid"`
}

// OrderScoped is implemented by every ledger event. The publisher uses the
// order id as the Pub/Sub ordering key so consumers see one order's events in
// commit order.
type OrderScoped interface {
	OrderRef() uuid.UUID
}

func (e PaymentRecordedEvent) OrderRef() uuid.UUID          { return e.OrderID }
func (e RefundCreatedEvent) OrderRef() uuid.UUID            { return e.OrderID }
func (e OrderPaidEvent) OrderRef() uuid.UUID                { return e.OrderID }
func (e OrderPaymentStateChangedEvent) OrderRef() uuid.UUID { return e.OrderID }
