package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tablepay-backend/api/middleware"
	"github.com/angelmondragon/tablepay-backend/internal/ledger"
	internalpayments "github.com/angelmondragon/tablepay-backend/internal/payments"
	"github.com/angelmondragon/tablepay-backend/internal/split"
	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepay-backend/pkg/errors"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
	"github.com/angelmondragon/tablepay-backend/pkg/types"
)

type stubService struct {
	record      func(ctx context.Context, actorID, orderID uuid.UUID, input internalpayments.RecordPaymentInput) (*models.Payment, error)
	recordSplit func(ctx context.Context, actorID, orderID uuid.UUID, input internalpayments.RecordSplitPaymentInput) (*models.Payment, error)
	refund      func(ctx context.Context, actorID, orderID uuid.UUID, input internalpayments.CreateRefundInput) (*models.Refund, error)
	payments    func(ctx context.Context, actorID, orderID uuid.UUID) ([]models.Payment, error)
	refunds     func(ctx context.Context, actorID, orderID uuid.UUID) ([]models.Refund, error)
	summary     func(ctx context.Context, actorID, orderID uuid.UUID) (*ledger.Summary, error)
	preview     func(ctx context.Context, actorID, orderID uuid.UUID, req split.Request) (*internalpayments.SplitPreview, error)
}

func (s *stubService) RecordPayment(ctx context.Context, actorID, orderID uuid.UUID, input internalpayments.RecordPaymentInput) (*models.Payment, error) {
	return s.record(ctx, actorID, orderID, input)
}

func (s *stubService) RecordSplitPayment(ctx context.Context, actorID, orderID uuid.UUID, input internalpayments.RecordSplitPaymentInput) (*models.Payment, error) {
	return s.recordSplit(ctx, actorID, orderID, input)
}

func (s *stubService) CreateRefund(ctx context.Context, actorID, orderID uuid.UUID, input internalpayments.CreateRefundInput) (*models.Refund, error) {
	return s.refund(ctx, actorID, orderID, input)
}

func (s *stubService) FindPaymentsByOrder(ctx context.Context, actorID, orderID uuid.UUID) ([]models.Payment, error) {
	return s.payments(ctx, actorID, orderID)
}

func (s *stubService) FindRefundsByOrder(ctx context.Context, actorID, orderID uuid.UUID) ([]models.Refund, error) {
	return s.refunds(ctx, actorID, orderID)
}

func (s *stubService) GetPaymentSummary(ctx context.Context, actorID, orderID uuid.UUID) (*ledger.Summary, error) {
	return s.summary(ctx, actorID, orderID)
}

func (s *stubService) CalculateSplitAmounts(ctx context.Context, actorID, orderID uuid.UUID, req split.Request) (*internalpayments.SplitPreview, error) {
	return s.preview(ctx, actorID, orderID, req)
}

func newRequest(method, orderID, body string, actorID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/orders/"+orderID+"/payments", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if actorID != uuid.Nil {
		ctx = middleware.WithActorID(ctx, actorID)
	}
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v (%s)", err, envelope.Data)
	}
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return envelope.Error
}

func TestRecordPaymentCreated(t *testing.T) {
	actorID, orderID := uuid.New(), uuid.New()
	var got internalpayments.RecordPaymentInput
	svc := &stubService{record: func(ctx context.Context, a, o uuid.UUID, input internalpayments.RecordPaymentInput) (*models.Payment, error) {
		if a != actorID || o != orderID {
			t.Fatalf("unexpected ids %s %s", a, o)
		}
		got = input
		change := money.MustParse("5.00")
		return &models.Payment{ID: uuid.New(), OrderID: o, Amount: input.Amount, Method: input.Method, AmountTendered: input.AmountTendered, ChangeGiven: &change}, nil
	}}

	resp := httptest.NewRecorder()
	body := `{"amount":"45.00","method":"cash","amount_tendered":"50.00","notes":"  table 4  "}`
	RecordPayment(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, orderID.String(), body, actorID))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.Method != enums.PaymentMethodCash || got.Amount.String() != "45.00" || got.AmountTendered == nil {
		t.Fatalf("unexpected service input %+v", got)
	}
	if got.Notes == nil || *got.Notes != "table 4" {
		t.Fatalf("notes should be trimmed, got %v", got.Notes)
	}

	var view map[string]any
	decodeData(t, resp, &view)
	if view["amount"] != "45.00" || view["change_given"] != "5.00" {
		t.Fatalf("money must serialize as strings, got %v", view)
	}
}

func TestRecordPaymentMapsLedgerErrors(t *testing.T) {
	orderID := uuid.New()
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{name: "overpayment", err: pkgerrors.Validation(internalpayments.ReasonOverpayment, "too much"), wantStatus: http.StatusBadRequest, wantReason: internalpayments.ReasonOverpayment},
		{name: "cancelled", err: pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled").WithReason(internalpayments.ReasonOrderCancelled), wantStatus: http.StatusUnprocessableEntity, wantReason: internalpayments.ReasonOrderCancelled},
		{name: "forbidden", err: pkgerrors.New(pkgerrors.CodeForbidden, "insufficient store role"), wantStatus: http.StatusForbidden},
		{name: "not found", err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{record: func(context.Context, uuid.UUID, uuid.UUID, internalpayments.RecordPaymentInput) (*models.Payment, error) {
				return nil, tt.err
			}}
			resp := httptest.NewRecorder()
			RecordPayment(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, orderID.String(), `{"amount":"1.00","method":"card"}`, uuid.New()))
			if resp.Code != tt.wantStatus {
				t.Fatalf("expected %d got %d", tt.wantStatus, resp.Code)
			}
			if body := decodeError(t, resp); body.Reason != tt.wantReason {
				t.Fatalf("expected reason %q got %q", tt.wantReason, body.Reason)
			}
		})
	}
}

func TestRecordPaymentRejectsBadRequests(t *testing.T) {
	svc := &stubService{record: func(context.Context, uuid.UUID, uuid.UUID, internalpayments.RecordPaymentInput) (*models.Payment, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	tests := []struct {
		name       string
		orderID    string
		actor      uuid.UUID
		body       string
		wantStatus int
	}{
		{name: "no actor", orderID: uuid.NewString(), body: `{"amount":"1.00","method":"card"}`, wantStatus: http.StatusUnauthorized},
		{name: "bad order id", orderID: "abc", actor: uuid.New(), body: `{"amount":"1.00","method":"card"}`, wantStatus: http.StatusBadRequest},
		{name: "bad method", orderID: uuid.NewString(), actor: uuid.New(), body: `{"amount":"1.00","method":"iou"}`, wantStatus: http.StatusBadRequest},
		{name: "missing amount", orderID: uuid.NewString(), actor: uuid.New(), body: `{"method":"card"}`, wantStatus: http.StatusBadRequest},
		{name: "three decimals", orderID: uuid.NewString(), actor: uuid.New(), body: `{"amount":"1.001","method":"card"}`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			RecordPayment(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, tt.orderID, tt.body, tt.actor))
			if resp.Code != tt.wantStatus {
				t.Fatalf("expected %d got %d: %s", tt.wantStatus, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestRecordSplitPayment(t *testing.T) {
	var got internalpayments.RecordSplitPaymentInput
	svc := &stubService{recordSplit: func(ctx context.Context, a, o uuid.UUID, input internalpayments.RecordSplitPaymentInput) (*models.Payment, error) {
		got = input
		guest := input.GuestNumber
		st := input.SplitType
		return &models.Payment{ID: uuid.New(), OrderID: o, Amount: input.Amount, Method: input.Method, SplitType: &st, GuestNumber: &guest, SplitMetadata: input.SplitMetadata}, nil
	}}

	body := `{"amount":"33.34","method":"card","split_type":"even","guest_number":1,"split_metadata":{"guest_count":3}}`
	resp := httptest.NewRecorder()
	RecordSplitPayment(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, uuid.NewString(), body, uuid.New()))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.SplitType != enums.SplitTypeEven || got.GuestNumber != 1 || got.Amount.String() != "33.34" {
		t.Fatalf("unexpected service input %+v", got)
	}
	var view map[string]any
	decodeData(t, resp, &view)
	if view["split_type"] != "even" || view["guest_number"] != float64(1) {
		t.Fatalf("unexpected view %v", view)
	}

	resp = httptest.NewRecorder()
	RecordSplitPayment(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, uuid.NewString(), `{"amount":"1.00","method":"card","split_type":"even"}`, uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("guest number is required, got %d", resp.Code)
	}
}

func TestCreateRefundAndLists(t *testing.T) {
	orderID := uuid.New()
	svc := &stubService{
		refund: func(ctx context.Context, a, o uuid.UUID, input internalpayments.CreateRefundInput) (*models.Refund, error) {
			if input.Reason == nil || *input.Reason != "cold food" {
				t.Fatalf("unexpected reason %v", input.Reason)
			}
			return &models.Refund{ID: uuid.New(), OrderID: o, Amount: input.Amount, Reason: input.Reason}, nil
		},
		payments: func(ctx context.Context, a, o uuid.UUID) ([]models.Payment, error) {
			return []models.Payment{{ID: uuid.New(), OrderID: o, Amount: money.MustParse("10"), Method: enums.PaymentMethodCard}}, nil
		},
		refunds: func(ctx context.Context, a, o uuid.UUID) ([]models.Refund, error) {
			return nil, nil
		},
	}
	actor := uuid.New()

	resp := httptest.NewRecorder()
	CreateRefund(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, orderID.String(), `{"amount":"4.00","reason":"cold food"}`, actor))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	ListPayments(svc, nil).ServeHTTP(resp, newRequest(http.MethodGet, orderID.String(), "", actor))
	var payments []map[string]any
	decodeData(t, resp, &payments)
	if len(payments) != 1 || payments[0]["amount"] != "10.00" {
		t.Fatalf("unexpected payments %v", payments)
	}

	resp = httptest.NewRecorder()
	ListRefunds(svc, nil).ServeHTTP(resp, newRequest(http.MethodGet, orderID.String(), "", actor))
	var refunds []map[string]any
	decodeData(t, resp, &refunds)
	if refunds == nil || len(refunds) != 0 {
		t.Fatalf("empty lists must serialize as [], got %s", resp.Body.String())
	}
}

func TestSummaryAndSplitPreview(t *testing.T) {
	orderID := uuid.New()
	snap := ledger.Compute(orderID, money.MustParse("100.01"), nil, nil)
	var gotReq split.Request
	svc := &stubService{
		summary: func(ctx context.Context, a, o uuid.UUID) (*ledger.Summary, error) {
			s := snap.Summary()
			s.Status = string(enums.OrderStatusOpen)
			return &s, nil
		},
		preview: func(ctx context.Context, a, o uuid.UUID, req split.Request) (*internalpayments.SplitPreview, error) {
			gotReq = req
			res, err := split.Calculate(req, snap, nil)
			if err != nil {
				return nil, err
			}
			return &internalpayments.SplitPreview{Split: res, Summary: snap.Summary()}, nil
		},
	}
	actor := uuid.New()

	resp := httptest.NewRecorder()
	Summary(svc, nil).ServeHTTP(resp, newRequest(http.MethodGet, orderID.String(), "", actor))
	var summary map[string]any
	decodeData(t, resp, &summary)
	if summary["remaining_balance"] != "100.01" || summary["status"] != "open" || summary["is_fully_paid"] != false {
		t.Fatalf("unexpected summary %v", summary)
	}

	resp = httptest.NewRecorder()
	SplitPreview(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, orderID.String(), `{"split_type":"even","guest_count":3}`, actor))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotReq.Type != enums.SplitTypeEven || gotReq.GuestCount != 3 {
		t.Fatalf("unexpected split request %+v", gotReq)
	}
	var preview struct {
		Split struct {
			Shares []struct {
				GuestNumber int    `json:"guest_number"`
				Amount      string `json:"amount"`
			} `json:"shares"`
		} `json:"split"`
	}
	decodeData(t, resp, &preview)
	want := []string{"33.34", "33.34", "33.33"}
	for i, share := range preview.Split.Shares {
		if share.Amount != want[i] || share.GuestNumber != i+1 {
			t.Fatalf("unexpected shares %+v", preview.Split.Shares)
		}
	}

	resp = httptest.NewRecorder()
	SplitPreview(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, orderID.String(), `{"split_type":"by_item","assignments":{"1":["`+uuid.NewString()+`"]}}`, actor))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown item, got %d", resp.Code)
	}
	if body := decodeError(t, resp); body.Reason != split.ReasonInvalidSplit {
		t.Fatalf("expected INVALID_SPLIT, got %+v", body)
	}
}
