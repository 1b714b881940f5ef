package split

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepay-backend/internal/ledger"
	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepay-backend/pkg/errors"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
)

func snapshotWithRemaining(grandTotal string, paid ...string) ledger.Snapshot {
	payments := make([]models.Payment, 0, len(paid))
	for _, p := range paid {
		payments = append(payments, models.Payment{Amount: money.MustParse(p)})
	}
	return ledger.Compute(uuid.New(), money.MustParse(grandTotal), payments, nil)
}

func amounts(shares []Share) []string {
	out := make([]string, len(shares))
	for i, s := range shares {
		out[i] = s.Amount.String()
	}
	return out
}

func expectReason(t *testing.T, err error, reason string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", reason)
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if typed.Reason() != reason {
		t.Fatalf("expected reason %s, got %s", reason, typed.Reason())
	}
}

func TestEvenSplitAssignsRemainderToFirstGuests(t *testing.T) {
	res, err := Calculate(Request{Type: enums.SplitTypeEven, GuestCount: 3}, snapshotWithRemaining("100.01"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := amounts(res.Shares)
	want := []string{"33.34", "33.34", "33.33"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if res.Total().String() != "100.01" {
		t.Fatalf("expected total 100.01, got %s", res.Total())
	}
	for i, s := range res.Shares {
		if s.GuestNumber != i+1 {
			t.Fatalf("guest numbers must start at 1, got %+v", res.Shares)
		}
	}
}

func TestEvenSplitUsesRemainingBalance(t *testing.T) {
	res, err := Calculate(Request{Type: enums.SplitTypeEven, GuestCount: 2}, snapshotWithRemaining("100.00", "40.00"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Target.String() != "60.00" {
		t.Fatalf("expected target 60.00, got %s", res.Target)
	}
	if got := amounts(res.Shares); got[0] != "30.00" || got[1] != "30.00" {
		t.Fatalf("unexpected shares %v", got)
	}
}

func TestEvenSplitRejectsBadGuestCount(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := Calculate(Request{Type: enums.SplitTypeEven, GuestCount: n}, snapshotWithRemaining("10"), nil)
		expectReason(t, err, ReasonInvalidSplit)
	}
}

func TestEvenSplitHandlesLargeGuestCounts(t *testing.T) {
	for _, tc := range []struct {
		balance string
		guests  int
	}{
		{"100.00", MaxGuests + 1},
		{"100.00", 300},
		{"0.01", 120},
		{"99999.99", 1000},
	} {
		t.Run(fmt.Sprintf("%s/%d", tc.balance, tc.guests), func(t *testing.T) {
			res, err := Calculate(Request{Type: enums.SplitTypeEven, GuestCount: tc.guests}, snapshotWithRemaining(tc.balance), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Shares) != tc.guests {
				t.Fatalf("expected %d shares, got %d", tc.guests, len(res.Shares))
			}
			if !res.Total().Equal(money.MustParse(tc.balance)) {
				t.Fatalf("shares sum to %s, want %s", res.Total(), tc.balance)
			}
			first, last := res.Shares[0].Amount, res.Shares[tc.guests-1].Amount
			if first.Sub(last).Cents() > 1 || first.LessThan(last) {
				t.Fatalf("shares differ by more than a cent: first %s last %s", first, last)
			}
		})
	}
}

func TestSplitSumEqualsRemainingBalance(t *testing.T) {
	balances := []string{"0.00", "0.01", "0.02", "1.00", "9.99", "100.01", "1234.57", "99999.99"}
	itemIDs := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	items := []Item{
		{ID: itemIDs[0], LineTotal: money.MustParse("12.35")},
		{ID: itemIDs[1], LineTotal: money.MustParse("7.10")},
		{ID: itemIDs[2], LineTotal: money.MustParse("3.33")},
	}

	for _, balance := range balances {
		for guests := 1; guests <= 7; guests++ {
			name := fmt.Sprintf("%s/%d", balance, guests)
			snap := snapshotWithRemaining(balance)

			t.Run("even/"+name, func(t *testing.T) {
				res, err := Calculate(Request{Type: enums.SplitTypeEven, GuestCount: guests}, snap, nil)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(res.Shares) != guests || !res.Total().Equal(money.MustParse(balance)) {
					t.Fatalf("shares %v do not sum to %s", amounts(res.Shares), balance)
				}
			})

			t.Run("by_item/"+name, func(t *testing.T) {
				assignments := map[int][]uuid.UUID{}
				for g := 1; g <= guests; g++ {
					assignments[g] = nil
				}
				assignments[1] = []uuid.UUID{itemIDs[0]}
				if guests > 1 {
					assignments[2] = []uuid.UUID{itemIDs[1]}
				} else {
					assignments[1] = append(assignments[1], itemIDs[1])
				}
				res, err := Calculate(Request{
					Type:        enums.SplitTypeByItem,
					Assignments: assignments,
					Shared:      []uuid.UUID{itemIDs[2]},
				}, snap, items)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !res.Total().Equal(money.MustParse(balance)) {
					t.Fatalf("shares %v do not sum to %s", amounts(res.Shares), balance)
				}
				for _, s := range res.Shares {
					if s.Amount.IsNegative() {
						t.Fatalf("negative share %v", amounts(res.Shares))
					}
				}
			})

			t.Run("custom/"+name, func(t *testing.T) {
				cents := DistributeEven(money.MustParse(balance).Cents(), guests)
				custom := make([]money.Money, guests)
				for i, c := range cents {
					custom[i] = money.FromCents(c)
				}
				res, err := Calculate(Request{Type: enums.SplitTypeCustom, Amounts: custom}, snap, nil)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !res.Total().Equal(money.MustParse(balance)) {
					t.Fatalf("shares %v do not sum to %s", amounts(res.Shares), balance)
				}
			})
		}
	}
}

func TestByItemUsesItemPricesWhenTheyMatchBalance(t *testing.T) {
	burger, fries, wine := uuid.New(), uuid.New(), uuid.New()
	items := []Item{
		{ID: burger, LineTotal: money.MustParse("15.50")},
		{ID: fries, LineTotal: money.MustParse("4.50")},
		{ID: wine, LineTotal: money.MustParse("30.01")},
	}
	res, err := Calculate(Request{
		Type:        enums.SplitTypeByItem,
		Assignments: map[int][]uuid.UUID{1: {burger}, 2: {fries}},
		Shared:      []uuid.UUID{wine},
	}, snapshotWithRemaining("50.01"), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := amounts(res.Shares)
	// wine 30.01 splits 15.01 / 15.00
	if got[0] != "30.51" || got[1] != "19.50" {
		t.Fatalf("unexpected shares %v", got)
	}
}

func TestByItemSpreadsTaxProportionally(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	items := []Item{
		{ID: a, LineTotal: money.MustParse("30.00")},
		{ID: b, LineTotal: money.MustParse("10.00")},
	}
	// 40.00 of items plus 10% tax
	res, err := Calculate(Request{
		Type:        enums.SplitTypeByItem,
		Assignments: map[int][]uuid.UUID{1: {a}, 2: {b}},
	}, snapshotWithRemaining("44.00"), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := amounts(res.Shares); got[0] != "33.00" || got[1] != "11.00" {
		t.Fatalf("unexpected shares %v", got)
	}
}

func TestByItemRejectsInvalidAssignments(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	items := []Item{
		{ID: a, LineTotal: money.MustParse("5")},
		{ID: b, LineTotal: money.MustParse("5")},
	}
	snap := snapshotWithRemaining("10")

	tests := []struct {
		name string
		req  Request
	}{
		{name: "unassigned item", req: Request{Assignments: map[int][]uuid.UUID{1: {a}}}},
		{name: "unknown item", req: Request{Assignments: map[int][]uuid.UUID{1: {a, b, uuid.New()}}}},
		{name: "double assignment", req: Request{Assignments: map[int][]uuid.UUID{1: {a, b}, 2: {b}}}},
		{name: "assigned and shared", req: Request{Assignments: map[int][]uuid.UUID{1: {a, b}}, Shared: []uuid.UUID{a}}},
		{name: "guest zero", req: Request{Assignments: map[int][]uuid.UUID{0: {a, b}}}},
		{name: "no guests", req: Request{Shared: []uuid.UUID{a, b}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Type = enums.SplitTypeByItem
			_, err := Calculate(tt.req, snap, items)
			expectReason(t, err, ReasonInvalidSplit)
		})
	}
}

func TestCustomSplitValidation(t *testing.T) {
	snap := snapshotWithRemaining("100.00")

	_, err := Calculate(Request{Type: enums.SplitTypeCustom, Amounts: []money.Money{money.MustParse("50"), money.MustParse("49.99")}}, snap, nil)
	expectReason(t, err, ReasonSplitMismatch)

	_, err = Calculate(Request{Type: enums.SplitTypeCustom, Amounts: []money.Money{money.MustParse("110"), money.MustParse("-10")}}, snap, nil)
	expectReason(t, err, ReasonInvalidAmount)

	_, err = Calculate(Request{Type: enums.SplitTypeCustom}, snap, nil)
	expectReason(t, err, ReasonInvalidSplit)

	res, err := Calculate(Request{Type: enums.SplitTypeCustom, Amounts: []money.Money{money.MustParse("70"), money.Zero(), money.MustParse("30")}}, snap, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := amounts(res.Shares); got[0] != "70.00" || got[1] != "0.00" || got[2] != "30.00" {
		t.Fatalf("custom amounts must be kept as given, got %v", got)
	}
}

func TestCalculateRejectsUnknownTypeAndNegativeBalance(t *testing.T) {
	_, err := Calculate(Request{Type: "thirds", GuestCount: 3}, snapshotWithRemaining("10"), nil)
	expectReason(t, err, ReasonInvalidSplit)

	over := ledger.Compute(uuid.New(), money.MustParse("10"), []models.Payment{{Amount: money.MustParse("12")}}, nil)
	_, err = Calculate(Request{Type: enums.SplitTypeEven, GuestCount: 2}, over, nil)
	expectReason(t, err, ReasonInvalidAmount)
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name    string
		total   int64
		weights []int64
		want    []int64
	}{
		{name: "exact", total: 100, weights: []int64{60, 40}, want: []int64{60, 40}},
		{name: "proportional", total: 4400, weights: []int64{3000, 1000}, want: []int64{3300, 1100}},
		{name: "leftover to first", total: 100, weights: []int64{1, 1, 1}, want: []int64{34, 33, 33}},
		{name: "zero weights", total: 5, weights: []int64{0, 0}, want: []int64{3, 2}},
		{name: "zero weight keeps nothing", total: 10, weights: []int64{0, 3, 3}, want: []int64{0, 5, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Allocate(tt.total, tt.weights)
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}
