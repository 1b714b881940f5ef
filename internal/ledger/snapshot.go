package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

// Snapshot is the financial state of one order derived from its committed
// payment and refund rows. It is rebuilt on every read and never cached.
type Snapshot struct {
	OrderID          uuid.UUID
	GrandTotal       money.Money
	TotalPaid        money.Money
	TotalRefunded    money.Money
	NetPaid          money.Money
	RemainingBalance money.Money
	IsFullyPaid      bool
	PaymentCount     int
	RefundCount      int
	// GuestPaid sums split payments per guest number. Informational only.
	GuestPaid map[int]money.Money
}

// Compute projects a snapshot from rows. Soft-deleted payments are skipped even
// when the caller loaded them unscoped.
func Compute(orderID uuid.UUID, grandTotal money.Money, payments []models.Payment, refunds []models.Refund) Snapshot {
	snap := Snapshot{
		OrderID:    orderID,
		GrandTotal: grandTotal,
		GuestPaid:  map[int]money.Money{},
	}
	for _, p := range payments {
		if p.DeletedAt.Valid {
			continue
		}
		snap.TotalPaid = snap.TotalPaid.Add(p.Amount)
		snap.PaymentCount++
		if p.GuestNumber != nil {
			snap.GuestPaid[*p.GuestNumber] = snap.GuestPaid[*p.GuestNumber].Add(p.Amount)
		}
	}
	for _, r := range refunds {
		snap.TotalRefunded = snap.TotalRefunded.Add(r.Amount)
		snap.RefundCount++
	}
	return snap.settle()
}

// Load reads live payments and refunds through the given repositories and
// computes the snapshot. Pass WithTx repositories to read inside a transaction.
func Load(ctx context.Context, payments PaymentRepository, refunds RefundRepository, orderID uuid.UUID, grandTotal money.Money) (Snapshot, error) {
	paid, err := payments.ListByOrderID(ctx, orderID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list payments: %w", err)
	}
	refunded, err := refunds.ListByOrderID(ctx, orderID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list refunds: %w", err)
	}
	return Compute(orderID, grandTotal, paid, refunded), nil
}

// CanAcceptPayment reports whether amount keeps netPaid within grandTotal.
func (s Snapshot) CanAcceptPayment(amount money.Money) bool {
	return !s.NetPaid.Add(amount).GreaterThan(s.GrandTotal)
}

// CanRefund reports whether amount keeps totalRefunded within totalPaid.
func (s Snapshot) CanRefund(amount money.Money) bool {
	return s.TotalPaid.IsPositive() && !s.TotalRefunded.Add(amount).GreaterThan(s.TotalPaid)
}

// WithPayment returns the snapshot as it will be once p is committed.
func (s Snapshot) WithPayment(p models.Payment) Snapshot {
	next := s.clone()
	next.TotalPaid = next.TotalPaid.Add(p.Amount)
	next.PaymentCount++
	if p.GuestNumber != nil {
		next.GuestPaid[*p.GuestNumber] = next.GuestPaid[*p.GuestNumber].Add(p.Amount)
	}
	return next.settle()
}

// WithRefund returns the snapshot as it will be once r is committed.
func (s Snapshot) WithRefund(r models.Refund) Snapshot {
	next := s.clone()
	next.TotalRefunded = next.TotalRefunded.Add(r.Amount)
	next.RefundCount++
	return next.settle()
}

func (s Snapshot) clone() Snapshot {
	guests := make(map[int]money.Money, len(s.GuestPaid))
	for k, v := range s.GuestPaid {
		guests[k] = v
	}
	s.GuestPaid = guests
	return s
}

func (s Snapshot) settle() Snapshot {
	s.NetPaid = s.TotalPaid.Sub(s.TotalRefunded)
	s.RemainingBalance = s.GrandTotal.Sub(s.NetPaid)
	s.IsFullyPaid = !s.RemainingBalance.IsPositive()
	return s
}

// GuestTotal is the informational paid amount for one guest.
type GuestTotal struct {
	GuestNumber int         `json:"guest_number"`
	Paid        money.Money `json:"paid"`
}

// Summary is the wire form of a snapshot; every amount is a 2-decimal string.
type Summary struct {
	OrderID          uuid.UUID    `json:"order_id"`
	Status           string       `json:"status,omitempty"`
	PaidAt           *time.Time   `json:"paid_at,omitempty"`
	GrandTotal       money.Money  `json:"grand_total"`
	TotalPaid        money.Money  `json:"total_paid"`
	TotalRefunded    money.Money  `json:"total_refunded"`
	NetPaid          money.Money  `json:"net_paid"`
	RemainingBalance money.Money  `json:"remaining_balance"`
	IsFullyPaid      bool         `json:"is_fully_paid"`
	PaymentCount     int          `json:"payment_count"`
	RefundCount      int          `json:"refund_count"`
	Guests           []GuestTotal `json:"guests,omitempty"`
}

// Summary converts the snapshot; guests are ordered by guest number.
func (s Snapshot) Summary() Summary {
	out := Summary{
		OrderID:          s.OrderID,
		GrandTotal:       s.GrandTotal.Round(),
		TotalPaid:        s.TotalPaid.Round(),
		TotalRefunded:    s.TotalRefunded.Round(),
		NetPaid:          s.NetPaid.Round(),
		RemainingBalance: s.RemainingBalance.Round(),
		IsFullyPaid:      s.IsFullyPaid,
		PaymentCount:     s.PaymentCount,
		RefundCount:      s.RefundCount,
	}
	for guest, paid := range s.GuestPaid {
		out.Guests = append(out.Guests, GuestTotal{GuestNumber: guest, Paid: paid.Round()})
	}
	sort.Slice(out.Guests, func(i, j int) bool {
		return out.Guests[i].GuestNumber < out.Guests[j].GuestNumber
	})
	return out
}
