package payments

import (
	"encoding/json"

	"github.com/angelmondragon/tablepay-backend/internal/ledger"
	"github.com/angelmondragon/tablepay-backend/internal/split"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

// Reason codes attached to rejected ledger mutations.
const (
	ReasonInvalidAmount     = split.ReasonInvalidAmount
	ReasonOverpayment       = "OVERPAYMENT"
	ReasonOverrefund        = "OVERREFUND"
	ReasonSplitMismatch     = split.ReasonSplitMismatch
	ReasonInvalidCashTender = "INVALID_CASH_TENDER"
	ReasonInvalidSplit      = split.ReasonInvalidSplit
	ReasonOrderCancelled    = "ORDER_CANCELLED"
)

// RecordPaymentInput is a single payment against an order.
type RecordPaymentInput struct {
	Amount         money.Money
	Method         enums.PaymentMethod
	AmountTendered *money.Money
	TransactionID  *string
	Notes          *string
}

// RecordSplitPaymentInput is one guest's share of a split bill.
type RecordSplitPaymentInput struct {
	RecordPaymentInput
	SplitType     enums.SplitType
	GuestNumber   int
	SplitMetadata json.RawMessage
}

// CreateRefundInput returns money against an order.
type CreateRefundInput struct {
	Amount money.Money
	Reason *string
}

// SplitPreview pairs the proposed shares with the ledger state they were computed from.
type SplitPreview struct {
	Split   split.Result   `json:"split"`
	Summary ledger.Summary `json:"summary"`
}
