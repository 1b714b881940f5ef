// Package payments exposes the order payment ledger over HTTP.
package payments

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepay-backend/api/middleware"
	"github.com/angelmondragon/tablepay-backend/api/responses"
	"github.com/angelmondragon/tablepay-backend/api/validators"
	internalpayments "github.com/angelmondragon/tablepay-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/tablepay-backend/pkg/errors"
	"github.com/angelmondragon/tablepay-backend/pkg/logger"
)

const orderIDParam = "orderId"

// RecordPayment handles POST /orders/{orderId}/payments.
func RecordPayment(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, orderID, ok := requestIDs(w, r, svc, logg)
		if !ok {
			return
		}

		var body recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.RecordPayment(r.Context(), actorID, orderID, body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentView(*payment))
	}
}

// RecordSplitPayment handles POST /orders/{orderId}/payments/split.
func RecordSplitPayment(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, orderID, ok := requestIDs(w, r, svc, logg)
		if !ok {
			return
		}

		var body recordSplitPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.RecordSplitPayment(r.Context(), actorID, orderID, body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentView(*payment))
	}
}

// ListPayments handles GET /orders/{orderId}/payments.
func ListPayments(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, orderID, ok := requestIDs(w, r, svc, logg)
		if !ok {
			return
		}
		rows, err := svc.FindPaymentsByOrder(r.Context(), actorID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]paymentView, 0, len(rows))
		for _, row := range rows {
			views = append(views, newPaymentView(row))
		}
		responses.WriteSuccess(w, views)
	}
}

// CreateRefund handles POST /orders/{orderId}/refunds.
func CreateRefund(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, orderID, ok := requestIDs(w, r, svc, logg)
		if !ok {
			return
		}

		var body createRefundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refund, err := svc.CreateRefund(r.Context(), actorID, orderID, internalpayments.CreateRefundInput{
			Amount: *body.Amount,
			Reason: validators.OptionalString(body.Reason, maxReasonLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newRefundView(*refund))
	}
}

// ListRefunds handles GET /orders/{orderId}/refunds.
func ListRefunds(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, orderID, ok := requestIDs(w, r, svc, logg)
		if !ok {
			return
		}
		rows, err := svc.FindRefundsByOrder(r.Context(), actorID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]refundView, 0, len(rows))
		for _, row := range rows {
			views = append(views, newRefundView(row))
		}
		responses.WriteSuccess(w, views)
	}
}

// Summary handles GET /orders/{orderId}/payment-summary.
func Summary(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, orderID, ok := requestIDs(w, r, svc, logg)
		if !ok {
			return
		}
		summary, err := svc.GetPaymentSummary(r.Context(), actorID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// SplitPreview handles POST /orders/{orderId}/split-preview. Nothing is written.
func SplitPreview(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, orderID, ok := requestIDs(w, r, svc, logg)
		if !ok {
			return
		}

		var body splitPreviewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		preview, err := svc.CalculateSplitAmounts(r.Context(), actorID, orderID, body.toRequest())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

// requestIDs resolves the actor and the order path parameter, writing the
// error response itself when either is missing.
func requestIDs(w http.ResponseWriter, r *http.Request, svc internalpayments.Service, logg *logger.Logger) (uuid.UUID, uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
		return uuid.Nil, uuid.Nil, false
	}
	actorID, ok := middleware.ActorIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor"))
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err := validators.ParseUUIDParam(r, orderIDParam)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return actorID, orderID, true
}
