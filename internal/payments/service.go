package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/internal/ledger"
	"github.com/angelmondragon/tablepay-backend/internal/orders"
	"github.com/angelmondragon/tablepay-backend/internal/split"
	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepay-backend/pkg/errors"
	"github.com/angelmondragon/tablepay-backend/pkg/logger"
	"github.com/angelmondragon/tablepay-backend/pkg/metrics"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
	"github.com/angelmondragon/tablepay-backend/pkg/outbox"
	"github.com/angelmondragon/tablepay-backend/pkg/outbox/payloads"
)

const (
	opRecordPayment      = "record_payment"
	opRecordSplitPayment = "record_split_payment"
	opCreateRefund       = "create_refund"
	opReconcile          = "reconcile_status"
)

// Summaries and split previews are floor reads open to managers and waiters.
// Listing individual payment and refund rows stays with cash-handling roles.
var (
	paymentRoles = []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleAdmin, enums.MemberRoleCashier}
	refundRoles  = []enums.MemberRole{enums.MemberRoleOwner, enums.MemberRoleAdmin}
	previewRoles = []enums.MemberRole{
		enums.MemberRoleOwner,
		enums.MemberRoleAdmin,
		enums.MemberRoleManager,
		enums.MemberRoleCashier,
		enums.MemberRoleWaiter,
	}
)

// ServiceParams wires the ledger service dependencies.
type ServiceParams struct {
	Orders      orders.Repository
	Payments    ledger.PaymentRepository
	Refunds     ledger.RefundRepository
	Permissions PermissionChecker
	Tx          txRunner
	Outbox      outboxPublisher
	Status      statusSyncer
	Metrics     *metrics.LedgerMetrics
	Logger      *logger.Logger
}

type service struct {
	orders      orders.Repository
	payments    ledger.PaymentRepository
	refunds     ledger.RefundRepository
	permissions PermissionChecker
	tx          txRunner
	outbox      outboxPublisher
	status      statusSyncer
	metrics     *metrics.LedgerMetrics
	logg        *logger.Logger
}

// NewService builds the payment ledger service.
func NewService(params ServiceParams) (Service, error) {
	return newService(params)
}

// NewReconciler builds the system-side view of the ledger used by background
// jobs. It shares the service implementation.
func NewReconciler(params ServiceParams) (Reconciler, error) {
	return newService(params)
}

func newService(params ServiceParams) (*service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refunds repository required")
	}
	if params.Permissions == nil {
		return nil, fmt.Errorf("permission checker required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	status := params.Status
	if status == nil {
		status = orders.NewStatusSynchronizer()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		orders:      params.Orders,
		payments:    params.Payments,
		refunds:     params.Refunds,
		permissions: params.Permissions,
		tx:          params.Tx,
		outbox:      params.Outbox,
		status:      status,
		metrics:     params.Metrics,
		logg:        logg,
	}, nil
}

func (s *service) RecordPayment(ctx context.Context, actorID, orderID uuid.UUID, input RecordPaymentInput) (*models.Payment, error) {
	return s.recordPayment(ctx, opRecordPayment, actorID, orderID, input, nil)
}

func (s *service) RecordSplitPayment(ctx context.Context, actorID, orderID uuid.UUID, input RecordSplitPaymentInput) (*models.Payment, error) {
	return s.recordPayment(ctx, opRecordSplitPayment, actorID, orderID, input.RecordPaymentInput, &input)
}

func (s *service) recordPayment(ctx context.Context, op string, actorID, orderID uuid.UUID, input RecordPaymentInput, splitInput *RecordSplitPaymentInput) (*models.Payment, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveDuration(op, time.Since(started)) }()

	order, err := s.authorize(ctx, actorID, orderID, paymentRoles)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(s.logg.WithStoreID(ctx, order.StoreID.String()), orderID.String())

	change, err := validatePayment(input)
	if err != nil {
		return nil, s.rejected(ctx, op, err)
	}
	if splitInput != nil {
		if err := validateSplit(*splitInput); err != nil {
			return nil, s.rejected(ctx, op, err)
		}
	}

	payment := &models.Payment{
		OrderID:        orderID,
		Amount:         input.Amount,
		Method:         input.Method,
		AmountTendered: input.AmountTendered,
		ChangeGiven:    change,
		TransactionID:  input.TransactionID,
		Notes:          input.Notes,
		RecordedBy:     &actorID,
	}
	if splitInput != nil {
		splitType := splitInput.SplitType
		guest := splitInput.GuestNumber
		payment.SplitType = &splitType
		payment.GuestNumber = &guest
		payment.SplitMetadata = splitInput.SplitMetadata
	}

	var transition orders.Transition
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		locked, snap, err := s.lockAndLoad(ctx, tx, orderRepo, orderID, true)
		if err != nil {
			return err
		}
		if !snap.CanAcceptPayment(payment.Amount) {
			return pkgerrors.Validation(ReasonOverpayment,
				fmt.Sprintf("payment of %s exceeds remaining balance of %s", payment.Amount, snap.RemainingBalance.Round())).
				WithDetails(map[string]string{
					"amount":            payment.Amount.String(),
					"remaining_balance": snap.RemainingBalance.Round().String(),
				})
		}
		if err := s.payments.WithTx(tx).Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment")
		}

		after := snap.WithPayment(*payment)
		transition, err = s.status.Sync(ctx, orderRepo, locked, after)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sync order status")
		}

		actor := &outbox.ActorRef{UserID: actorID, StoreID: &locked.StoreID}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRecorded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         actor,
			Data: payloads.PaymentRecordedEvent{
				PaymentID:        payment.ID,
				OrderID:          orderID,
				StoreID:          locked.StoreID,
				Amount:           payment.Amount,
				Method:           payment.Method,
				SplitType:        payment.SplitType,
				GuestNumber:      payment.GuestNumber,
				RemainingBalance: after.RemainingBalance.Round(),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit payment event")
		}
		return s.emitTransition(ctx, tx, actor, locked, after, transition)
	})
	if err != nil {
		return nil, s.finish(ctx, op, err)
	}

	splitLabel := ""
	if payment.SplitType != nil {
		splitLabel = payment.SplitType.String()
	}
	s.metrics.IncPayment(payment.Method.String(), splitLabel)
	if transition.BecamePaid() {
		s.metrics.IncOrderPaid()
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id":   payment.ID.String(),
		"amount":       payment.Amount.String(),
		"method":       payment.Method,
		"order_status": transition.To,
	}), "payment recorded")
	return payment, nil
}

func (s *service) CreateRefund(ctx context.Context, actorID, orderID uuid.UUID, input CreateRefundInput) (*models.Refund, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveDuration(opCreateRefund, time.Since(started)) }()

	order, err := s.authorize(ctx, actorID, orderID, refundRoles)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(s.logg.WithStoreID(ctx, order.StoreID.String()), orderID.String())

	if err := validateAmount(input.Amount); err != nil {
		return nil, s.rejected(ctx, opCreateRefund, err)
	}

	refund := &models.Refund{
		OrderID:    orderID,
		Amount:     input.Amount,
		Reason:     input.Reason,
		RefundedBy: &actorID,
	}

	var transition orders.Transition
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		locked, snap, err := s.lockAndLoad(ctx, tx, orderRepo, orderID, true)
		if err != nil {
			return err
		}
		if !snap.CanRefund(refund.Amount) {
			refundable := snap.TotalPaid.Sub(snap.TotalRefunded).Round()
			return pkgerrors.Validation(ReasonOverrefund,
				fmt.Sprintf("refund of %s exceeds refundable amount of %s", refund.Amount, refundable)).
				WithDetails(map[string]string{
					"amount":         refund.Amount.String(),
					"total_paid":     snap.TotalPaid.Round().String(),
					"total_refunded": snap.TotalRefunded.Round().String(),
				})
		}
		if err := s.refunds.WithTx(tx).Create(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create refund")
		}

		after := snap.WithRefund(*refund)
		transition, err = s.status.Sync(ctx, orderRepo, locked, after)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sync order status")
		}

		actor := &outbox.ActorRef{UserID: actorID, StoreID: &locked.StoreID}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundCreated,
			AggregateType: enums.AggregateRefund,
			AggregateID:   refund.ID,
			Actor:         actor,
			Data: payloads.RefundCreatedEvent{
				RefundID:         refund.ID,
				OrderID:          orderID,
				StoreID:          locked.StoreID,
				Amount:           refund.Amount,
				Reason:           refund.Reason,
				RemainingBalance: after.RemainingBalance.Round(),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit refund event")
		}
		return s.emitTransition(ctx, tx, actor, locked, after, transition)
	})
	if err != nil {
		return nil, s.finish(ctx, opCreateRefund, err)
	}

	s.metrics.IncRefund()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"refund_id":    refund.ID.String(),
		"amount":       refund.Amount.String(),
		"order_status": transition.To,
	}), "refund created")
	return refund, nil
}

func (s *service) FindPaymentsByOrder(ctx context.Context, actorID, orderID uuid.UUID) ([]models.Payment, error) {
	if _, err := s.authorize(ctx, actorID, orderID, paymentRoles); err != nil {
		return nil, err
	}
	rows, err := s.payments.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	return rows, nil
}

func (s *service) FindRefundsByOrder(ctx context.Context, actorID, orderID uuid.UUID) ([]models.Refund, error) {
	if _, err := s.authorize(ctx, actorID, orderID, paymentRoles); err != nil {
		return nil, err
	}
	rows, err := s.refunds.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list refunds")
	}
	return rows, nil
}

func (s *service) GetPaymentSummary(ctx context.Context, actorID, orderID uuid.UUID) (*ledger.Summary, error) {
	order, err := s.authorize(ctx, actorID, orderID, previewRoles)
	if err != nil {
		return nil, err
	}
	snap, err := ledger.Load(ctx, s.payments, s.refunds, order.ID, order.GrandTotal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger")
	}
	summary := summarize(order, snap)
	return &summary, nil
}

func (s *service) CalculateSplitAmounts(ctx context.Context, actorID, orderID uuid.UUID, req split.Request) (*SplitPreview, error) {
	order, err := s.authorize(ctx, actorID, orderID, previewRoles)
	if err != nil {
		return nil, err
	}
	if err := validatePreviewSize(req); err != nil {
		return nil, err
	}
	snap, err := ledger.Load(ctx, s.payments, s.refunds, order.ID, order.GrandTotal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger")
	}

	var items []split.Item
	if req.Type == enums.SplitTypeByItem {
		rows, err := s.orders.ListItems(ctx, orderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order items")
		}
		items = make([]split.Item, 0, len(rows))
		for _, row := range rows {
			items = append(items, split.Item{ID: row.ID, LineTotal: row.LineTotal()})
		}
	}

	result, err := split.Calculate(req, snap, items)
	if err != nil {
		return nil, err
	}
	return &SplitPreview{Split: result, Summary: summarize(order, snap)}, nil
}

// ReconcileOrderStatus re-derives the order status from the ledger rows under
// the order lock. It repairs orders whose payments were soft-deleted by the
// order workflow after the last ledger write.
func (s *service) ReconcileOrderStatus(ctx context.Context, orderID uuid.UUID) (orders.Transition, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	var transition orders.Transition
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		locked, snap, err := s.lockAndLoad(ctx, tx, orderRepo, orderID, false)
		if err != nil {
			return err
		}
		transition, err = s.status.Sync(ctx, orderRepo, locked, snap)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sync order status")
		}
		return s.emitTransition(ctx, tx, nil, locked, snap, transition)
	})
	if err != nil {
		return orders.Transition{}, s.finish(ctx, opReconcile, err)
	}
	if transition.Changed {
		if transition.BecamePaid() {
			s.metrics.IncOrderPaid()
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"from_status": transition.From,
			"to_status":   transition.To,
		}), "order payment status reconciled")
	}
	return transition, nil
}

// authorize loads the order and checks the actor's store role.
func (s *service) authorize(ctx context.Context, actorID, orderID uuid.UUID, roles []enums.MemberRole) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	if err := s.permissions.CheckStorePermission(ctx, actorID, order.StoreID, roles...); err != nil {
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check store permission")
		}
		return nil, err
	}
	return order, nil
}

// lockAndLoad takes the order row lock and rebuilds the snapshot from rows read
// under it. Payments are refused on cancelled orders; refunds are not.
func (s *service) lockAndLoad(ctx context.Context, tx *gorm.DB, orderRepo orders.Repository, orderID uuid.UUID, rejectCancelled bool) (*models.Order, ledger.Snapshot, error) {
	locked, err := orderRepo.LockByID(ctx, orderID)
	if err != nil {
		return nil, ledger.Snapshot{}, mapOrderError(err)
	}
	if rejectCancelled && locked.Status == enums.OrderStatusCancelled {
		return nil, ledger.Snapshot{}, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled").WithReason(ReasonOrderCancelled)
	}
	snap, err := ledger.Load(ctx, s.payments.WithTx(tx), s.refunds.WithTx(tx), locked.ID, locked.GrandTotal)
	if err != nil {
		return nil, ledger.Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger")
	}
	return locked, snap, nil
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, actor *outbox.ActorRef, order *models.Order, snap ledger.Snapshot, transition orders.Transition) error {
	if !transition.Changed {
		return nil
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPaymentStateChange,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderPaymentStateChangedEvent{
			OrderID:    order.ID,
			StoreID:    order.StoreID,
			FromStatus: transition.From,
			ToStatus:   transition.To,
			NetPaid:    snap.NetPaid.Round(),
		},
	}
	if transition.BecamePaid() {
		event.EventType = enums.EventOrderPaid
		event.Data = payloads.OrderPaidEvent{
			OrderID:    order.ID,
			StoreID:    order.StoreID,
			GrandTotal: order.GrandTotal,
			PaidAt:     *transition.PaidAt,
		}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order status event")
	}
	return nil
}

// finish normalizes an error from a mutation transaction and records it.
func (s *service) finish(ctx context.Context, op string, err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ledger transaction failed")
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeStateConflict:
		return s.rejected(ctx, op, typed)
	case pkgerrors.CodeNotFound:
		return typed
	default:
		s.logg.Error(ctx, fmt.Sprintf("%s failed", op), typed)
		return typed
	}
}

func (s *service) rejected(ctx context.Context, op string, err error) error {
	reason := pkgerrors.ReasonOf(err)
	s.metrics.IncRejected(op, reason)
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"operation": op,
		"reason":    reason,
		"error":     err.Error(),
	}), "ledger mutation rejected")
	return err
}

func mapOrderError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
}

func validateAmount(amount money.Money) error {
	if !amount.IsPositive() {
		return pkgerrors.Validation(ReasonInvalidAmount, "amount must be greater than zero")
	}
	if !amount.Equal(amount.Round()) {
		return pkgerrors.Validation(ReasonInvalidAmount, "amount must have at most 2 decimal places")
	}
	return nil
}

// validatePayment checks the input shape and returns the change owed for a
// cash tender, or nil when no tender was given.
func validatePayment(input RecordPaymentInput) (*money.Money, error) {
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", input.Method))
	}
	if input.AmountTendered == nil {
		return nil, nil
	}
	if input.Method != enums.PaymentMethodCash {
		return nil, pkgerrors.Validation(ReasonInvalidCashTender, "amount tendered is only accepted for cash payments")
	}
	change := input.AmountTendered.Sub(input.Amount)
	if change.IsNegative() {
		return nil, pkgerrors.Validation(ReasonInvalidCashTender,
			fmt.Sprintf("amount tendered %s is less than payment %s", input.AmountTendered, input.Amount)).
			WithDetails(map[string]string{
				"amount":          input.Amount.String(),
				"amount_tendered": input.AmountTendered.String(),
			})
	}
	return &change, nil
}

func validateSplit(input RecordSplitPaymentInput) error {
	if !input.SplitType.IsValid() {
		return pkgerrors.Validation(ReasonInvalidSplit, "split type must be even, by_item, or custom")
	}
	if input.GuestNumber < 1 || input.GuestNumber > split.MaxGuests {
		return pkgerrors.Validation(ReasonInvalidSplit, fmt.Sprintf("guest number must be between 1 and %d", split.MaxGuests))
	}
	if len(input.SplitMetadata) > 0 && !json.Valid(input.SplitMetadata) {
		return pkgerrors.Validation(ReasonInvalidSplit, "split metadata must be valid JSON")
	}
	return nil
}

// validatePreviewSize keeps preview requests within the guest numbers that
// RecordSplitPayment accepts.
func validatePreviewSize(req split.Request) error {
	guests := req.GuestCount
	switch req.Type {
	case enums.SplitTypeCustom:
		guests = len(req.Amounts)
	case enums.SplitTypeByItem:
		guests = 0
		for guest := range req.Assignments {
			guests = max(guests, guest)
		}
	}
	if guests > split.MaxGuests {
		return pkgerrors.Validation(ReasonInvalidSplit, fmt.Sprintf("split previews support at most %d guests", split.MaxGuests))
	}
	return nil
}

func summarize(order *models.Order, snap ledger.Snapshot) ledger.Summary {
	summary := snap.Summary()
	summary.Status = order.Status.String()
	summary.PaidAt = order.PaidAt
	return summary
}
