package split

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepay-backend/internal/ledger"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepay-backend/pkg/errors"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

// MaxGuests bounds guest counts and guest numbers accepted from API callers.
// Calculate itself splits across any number of guests.
const MaxGuests = 50

const (
	ReasonInvalidAmount = "INVALID_AMOUNT"
	ReasonSplitMismatch = "SPLIT_MISMATCH"
	ReasonInvalidSplit  = "INVALID_SPLIT"
)

// Request describes how the remaining balance should be divided.
type Request struct {
	Type enums.SplitType
	// GuestCount is used by EVEN.
	GuestCount int
	// Assignments maps guest number to order item ids (BY_ITEM).
	Assignments map[int][]uuid.UUID
	// Shared item ids are divided evenly among every assigned guest (BY_ITEM).
	Shared []uuid.UUID
	// Amounts are per-guest targets in guest order (CUSTOM).
	Amounts []money.Money
}

// Item is the priced view of an order line used by BY_ITEM.
type Item struct {
	ID        uuid.UUID
	LineTotal money.Money
}

// Share is the amount one guest should pay.
type Share struct {
	GuestNumber int         `json:"guest_number"`
	Amount      money.Money `json:"amount"`
}

// Result is the full split. The sum of Shares equals Target exactly.
type Result struct {
	Type   enums.SplitType `json:"split_type"`
	Target money.Money     `json:"target"`
	Shares []Share         `json:"shares"`
}

// Total sums every share.
func (r Result) Total() money.Money {
	total := money.Zero()
	for _, s := range r.Shares {
		total = total.Add(s.Amount)
	}
	return total
}

// Calculate divides snap.RemainingBalance according to req. items are only
// consulted for BY_ITEM and must be the order's active lines.
func Calculate(req Request, snap ledger.Snapshot, items []Item) (Result, error) {
	target := snap.RemainingBalance.Round()
	if target.IsNegative() {
		return Result{}, pkgerrors.Validation(ReasonInvalidAmount, "order has a negative remaining balance")
	}

	var (
		shares []Share
		err    error
	)
	switch req.Type {
	case enums.SplitTypeEven:
		shares, err = evenShares(target, req.GuestCount)
	case enums.SplitTypeByItem:
		shares, err = byItemShares(target, req, items)
	case enums.SplitTypeCustom:
		shares, err = customShares(target, req.Amounts)
	default:
		return Result{}, pkgerrors.Validation(ReasonInvalidSplit, fmt.Sprintf("unsupported split type %q", req.Type))
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Type: req.Type, Target: target, Shares: shares}, nil
}

func checkGuestCount(n int) error {
	if n < 1 {
		return pkgerrors.Validation(ReasonInvalidSplit, "guest count must be at least 1")
	}
	return nil
}

func evenShares(target money.Money, guests int) ([]Share, error) {
	if err := checkGuestCount(guests); err != nil {
		return nil, err
	}
	cents := DistributeEven(target.Cents(), guests)
	shares := make([]Share, guests)
	for i, c := range cents {
		shares[i] = Share{GuestNumber: i + 1, Amount: money.FromCents(c)}
	}
	return shares, nil
}

func customShares(target money.Money, amounts []money.Money) ([]Share, error) {
	if err := checkGuestCount(len(amounts)); err != nil {
		return nil, err
	}
	shares := make([]Share, len(amounts))
	total := money.Zero()
	for i, amount := range amounts {
		if amount.IsNegative() {
			return nil, pkgerrors.Validation(ReasonInvalidAmount, fmt.Sprintf("amount for guest %d is negative", i+1))
		}
		if !amount.Equal(amount.Round()) {
			return nil, pkgerrors.Validation(ReasonInvalidAmount, fmt.Sprintf("amount for guest %d has more than 2 decimals", i+1))
		}
		shares[i] = Share{GuestNumber: i + 1, Amount: amount}
		total = total.Add(amount)
	}
	if !total.Equal(target) {
		return nil, pkgerrors.Validation(ReasonSplitMismatch,
			fmt.Sprintf("custom amounts total %s but remaining balance is %s", total, target)).
			WithDetails(map[string]string{"total": total.String(), "remaining_balance": target.String()})
	}
	return shares, nil
}

func byItemShares(target money.Money, req Request, items []Item) ([]Share, error) {
	guests := make([]int, 0, len(req.Assignments))
	for guest := range req.Assignments {
		if guest < 1 {
			return nil, pkgerrors.Validation(ReasonInvalidSplit, "guest numbers must be positive")
		}
		guests = append(guests, guest)
	}
	if err := checkGuestCount(len(guests)); err != nil {
		return nil, err
	}
	sort.Ints(guests)

	prices := make(map[uuid.UUID]money.Money, len(items))
	for _, item := range items {
		prices[item.ID] = item.LineTotal
	}

	claimed := make(map[uuid.UUID]bool, len(items))
	claim := func(id uuid.UUID) error {
		if _, ok := prices[id]; !ok {
			return pkgerrors.Validation(ReasonInvalidSplit, fmt.Sprintf("item %s is not on this order", id))
		}
		if claimed[id] {
			return pkgerrors.Validation(ReasonInvalidSplit, fmt.Sprintf("item %s is assigned more than once", id))
		}
		claimed[id] = true
		return nil
	}

	weights := make([]int64, len(guests))
	for i, guest := range guests {
		for _, id := range req.Assignments[guest] {
			if err := claim(id); err != nil {
				return nil, err
			}
			weights[i] += prices[id].Cents()
		}
	}
	var sharedCents int64
	for _, id := range req.Shared {
		if err := claim(id); err != nil {
			return nil, err
		}
		sharedCents += prices[id].Cents()
	}
	for _, item := range items {
		if !claimed[item.ID] {
			return nil, pkgerrors.Validation(ReasonInvalidSplit,
				fmt.Sprintf("item %s is not assigned to a guest or marked shared", item.ID)).
				WithDetails(map[string]string{"item_id": item.ID.String()})
		}
	}

	for i, c := range DistributeEven(sharedCents, len(guests)) {
		weights[i] += c
	}

	cents := Allocate(target.Cents(), weights)
	shares := make([]Share, len(guests))
	for i, guest := range guests {
		shares[i] = Share{GuestNumber: guest, Amount: money.FromCents(cents[i])}
	}
	return shares, nil
}

// DistributeEven splits total cents into n parts; the first total%n parts get
// one extra cent. n must be positive and total non-negative.
func DistributeEven(total int64, n int) []int64 {
	out := make([]int64, n)
	base := total / int64(n)
	rem := total % int64(n)
	for i := range out {
		out[i] = base
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}

// Allocate divides total cents in proportion to weights. Weights that already
// sum to total are returned unchanged; all-zero weights fall back to an even
// split. Leftover cents after flooring go to the earliest parts.
func Allocate(total int64, weights []int64) []int64 {
	var sum int64
	for _, w := range weights {
		sum += w
	}
	out := make([]int64, len(weights))
	if sum == total {
		copy(out, weights)
		return out
	}
	if sum == 0 {
		return DistributeEven(total, len(weights))
	}
	var assigned int64
	for i, w := range weights {
		out[i] = mulDiv(total, w, sum)
		assigned += out[i]
	}
	for i := 0; assigned < total; i = (i + 1) % len(out) {
		if weights[i] == 0 {
			continue
		}
		out[i]++
		assigned++
	}
	return out
}

// mulDiv computes floor(a*b/c) without overflowing for realistic bill sizes.
func mulDiv(a, b, c int64) int64 {
	q := a / c
	r := a % c
	return q*b + (r*b)/c
}
