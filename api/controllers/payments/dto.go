package payments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepay-backend/api/validators"
	internalpayments "github.com/angelmondragon/tablepay-backend/internal/payments"
	"github.com/angelmondragon/tablepay-backend/internal/split"
	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

const (
	maxTransactionIDLength = 128
	maxNotesLength         = 500
	maxReasonLength        = 500
)

type recordPaymentRequest struct {
	Amount         *money.Money `json:"amount" validate:"required"`
	Method         string       `json:"method" validate:"required,payment_method"`
	AmountTendered *money.Money `json:"amount_tendered,omitempty"`
	TransactionID  *string      `json:"transaction_id,omitempty"`
	Notes          *string      `json:"notes,omitempty"`
}

func (r recordPaymentRequest) toInput() internalpayments.RecordPaymentInput {
	return internalpayments.RecordPaymentInput{
		Amount:         *r.Amount,
		Method:         enums.PaymentMethod(r.Method),
		AmountTendered: r.AmountTendered,
		TransactionID:  validators.OptionalString(r.TransactionID, maxTransactionIDLength),
		Notes:          validators.OptionalString(r.Notes, maxNotesLength),
	}
}

type recordSplitPaymentRequest struct {
	recordPaymentRequest
	SplitType     string          `json:"split_type" validate:"required,split_type"`
	GuestNumber   int             `json:"guest_number" validate:"required,min=1,max=50"`
	SplitMetadata json.RawMessage `json:"split_metadata,omitempty"`
}

func (r recordSplitPaymentRequest) toInput() internalpayments.RecordSplitPaymentInput {
	return internalpayments.RecordSplitPaymentInput{
		RecordPaymentInput: r.recordPaymentRequest.toInput(),
		SplitType:          enums.SplitType(r.SplitType),
		GuestNumber:        r.GuestNumber,
		SplitMetadata:      r.SplitMetadata,
	}
}

type createRefundRequest struct {
	Amount *money.Money `json:"amount" validate:"required"`
	Reason *string      `json:"reason,omitempty"`
}

type splitPreviewRequest struct {
	SplitType   string              `json:"split_type" validate:"required,split_type"`
	GuestCount  int                 `json:"guest_count,omitempty" validate:"omitempty,min=1,max=50"`
	Assignments map[int][]uuid.UUID `json:"assignments,omitempty"`
	Shared      []uuid.UUID         `json:"shared,omitempty"`
	Amounts     []money.Money       `json:"amounts,omitempty" validate:"omitempty,max=50"`
}

func (r splitPreviewRequest) toRequest() split.Request {
	return split.Request{
		Type:        enums.SplitType(r.SplitType),
		GuestCount:  r.GuestCount,
		Assignments: r.Assignments,
		Shared:      r.Shared,
		Amounts:     r.Amounts,
	}
}

type paymentView struct {
	ID             uuid.UUID           `json:"id"`
	OrderID        uuid.UUID           `json:"order_id"`
	Amount         money.Money         `json:"amount"`
	Method         enums.PaymentMethod `json:"method"`
	AmountTendered *money.Money        `json:"amount_tendered,omitempty"`
	ChangeGiven    *money.Money        `json:"change_given,omitempty"`
	TransactionID  *string             `json:"transaction_id,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
	SplitType      *enums.SplitType    `json:"split_type,omitempty"`
	SplitMetadata  json.RawMessage     `json:"split_metadata,omitempty"`
	GuestNumber    *int                `json:"guest_number,omitempty"`
	RecordedBy     *uuid.UUID          `json:"recorded_by,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func newPaymentView(p models.Payment) paymentView {
	return paymentView{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Amount:         p.Amount,
		Method:         p.Method,
		AmountTendered: p.AmountTendered,
		ChangeGiven:    p.ChangeGiven,
		TransactionID:  p.TransactionID,
		Notes:          p.Notes,
		SplitType:      p.SplitType,
		SplitMetadata:  p.SplitMetadata,
		GuestNumber:    p.GuestNumber,
		RecordedBy:     p.RecordedBy,
		CreatedAt:      p.CreatedAt,
	}
}

type refundView struct {
	ID         uuid.UUID   `json:"id"`
	OrderID    uuid.UUID   `json:"order_id"`
	Amount     money.Money `json:"amount"`
	Reason     *string     `json:"reason,omitempty"`
	RefundedBy *uuid.UUID  `json:"refunded_by,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

func newRefundView(r models.Refund) refundView {
	return refundView{
		ID:         r.ID,
		OrderID:    r.OrderID,
		Amount:     r.Amount,
		Reason:     r.Reason,
		RefundedBy: r.RefundedBy,
		CreatedAt:  r.CreatedAt,
	}
}
