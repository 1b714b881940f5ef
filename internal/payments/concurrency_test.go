package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepay-backend/internal/ledger"
	"github.com/angelmondragon/tablepay-backend/internal/orders"
	"github.com/angelmondragon/tablepay-backend/pkg/db/models"
	"github.com/angelmondragon/tablepay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepay-backend/pkg/errors"
	"github.com/angelmondragon/tablepay-backend/pkg/money"
	"github.com/angelmondragon/tablepay-backend/pkg/outbox"
)

// lockingStore imitates row locks held until commit. Each transaction gets a
// distinct *gorm.DB token; writes are buffered per token and applied on commit.
type lockingStore struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]models.Order
	payments []models.Payment
	refunds  []models.Refund
	rowLocks map[uuid.UUID]*sync.Mutex
	txs      map[*gorm.DB]*pendingTx
}

type pendingTx struct {
	held     []*sync.Mutex
	payments []models.Payment
	refunds  []models.Refund
	orders   map[uuid.UUID]models.Order
}

func newLockingStore(seed ...models.Order) *lockingStore {
	s := &lockingStore{
		orders:   map[uuid.UUID]models.Order{},
		rowLocks: map[uuid.UUID]*sync.Mutex{},
		txs:      map[*gorm.DB]*pendingTx{},
	}
	for _, o := range seed {
		s.orders[o.ID] = o
		s.rowLocks[o.ID] = &sync.Mutex{}
	}
	return s
}

func (s *lockingStore) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	token := &gorm.DB{}
	pending := &pendingTx{orders: map[uuid.UUID]models.Order{}}
	s.mu.Lock()
	s.txs[token] = pending
	s.mu.Unlock()

	err := fn(token)

	s.mu.Lock()
	if err == nil {
		s.payments = append(s.payments, pending.payments...)
		s.refunds = append(s.refunds, pending.refunds...)
		for id, o := range pending.orders {
			s.orders[id] = o
		}
	}
	delete(s.txs, token)
	s.mu.Unlock()

	for _, l := range pending.held {
		l.Unlock()
	}
	return err
}

func (s *lockingStore) pending(tx *gorm.DB) *pendingTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[tx]
}

type lockingOrders struct {
	store *lockingStore
	tx    *gorm.DB
}

func (r lockingOrders) WithTx(tx *gorm.DB) orders.Repository {
	return lockingOrders{store: r.store, tx: tx}
}

func (r lockingOrders) read(id uuid.UUID) (*models.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if p := r.store.txs[r.tx]; p != nil {
		if o, ok := p.orders[id]; ok {
			return &o, nil
		}
	}
	o, ok := r.store.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &o, nil
}

func (r lockingOrders) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.read(id)
}

func (r lockingOrders) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	p := r.store.pending(r.tx)
	r.store.mu.Lock()
	l, ok := r.store.rowLocks[id]
	r.store.mu.Unlock()
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if p != nil {
		l.Lock()
		p.held = append(p.held, l)
	}
	return r.read(id)
}

func (r lockingOrders) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	return nil, nil
}

func (r lockingOrders) UpdatePaymentState(ctx context.Context, id uuid.UUID, status enums.OrderStatus, paidAt *time.Time) error {
	o, err := r.read(id)
	if err != nil {
		return err
	}
	o.Status = status
	o.PaidAt = paidAt
	r.store.mu.Lock()
	r.store.txs[r.tx].orders[id] = *o
	r.store.mu.Unlock()
	return nil
}

type lockingPayments struct {
	store *lockingStore
	tx    *gorm.DB
}

func (r lockingPayments) WithTx(tx *gorm.DB) ledger.PaymentRepository {
	return lockingPayments{store: r.store, tx: tx}
}

func (r lockingPayments) Create(ctx context.Context, payment *models.Payment) error {
	payment.ID = uuid.New()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p := r.store.txs[r.tx]
	p.payments = append(p.payments, *payment)
	return nil
}

func (r lockingPayments) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rows := append([]models.Payment{}, r.store.payments...)
	if p := r.store.txs[r.tx]; p != nil {
		rows = append(rows, p.payments...)
	}
	out := rows[:0]
	for _, row := range rows {
		if row.OrderID == orderID {
			out = append(out, row)
		}
	}
	return out, nil
}

type lockingRefunds struct {
	store *lockingStore
	tx    *gorm.DB
}

func (r lockingRefunds) WithTx(tx *gorm.DB) ledger.RefundRepository {
	return lockingRefunds{store: r.store, tx: tx}
}

func (r lockingRefunds) Create(ctx context.Context, refund *models.Refund) error {
	refund.ID = uuid.New()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p := r.store.txs[r.tx]
	p.refunds = append(p.refunds, *refund)
	return nil
}

func (r lockingRefunds) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rows := append([]models.Refund{}, r.store.refunds...)
	if p := r.store.txs[r.tx]; p != nil {
		rows = append(rows, p.refunds...)
	}
	out := rows[:0]
	for _, row := range rows {
		if row.OrderID == orderID {
			out = append(out, row)
		}
	}
	return out, nil
}

type lockedOutbox struct {
	mu    *sync.Mutex
	inner *stubOutboxPublisher
}

func (o *lockedOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inner.Emit(ctx, tx, event)
}

func newLockingService(t *testing.T, store *lockingStore) (Service, *stubOutboxPublisher, *sync.Mutex) {
	t.Helper()
	pub := &stubOutboxPublisher{}
	var mu sync.Mutex
	svc, err := NewService(ServiceParams{
		Orders:      lockingOrders{store: store},
		Payments:    lockingPayments{store: store},
		Refunds:     lockingRefunds{store: store},
		Permissions: &stubChecker{},
		Tx:          store,
		Outbox:      &lockedOutbox{mu: &mu, inner: pub},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, pub, &mu
}

func TestConcurrentPaymentsNeverExceedGrandTotal(t *testing.T) {
	order := models.Order{ID: uuid.New(), StoreID: uuid.New(), GrandTotal: money.MustParse("100.00"), Status: enums.OrderStatusOpen}
	store := newLockingStore(order)
	svc, _, _ := newLockingService(t, store)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		errs      = make([]error, attempts)
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.RecordPayment(context.Background(), uuid.New(), order.ID, RecordPaymentInput{
				Amount: money.MustParse("60.00"),
				Method: enums.PaymentMethodCard,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		if pkgerrors.ReasonOf(err) != ReasonOverpayment {
			t.Fatalf("expected OVERPAYMENT, got %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one payment to succeed, got %d", successes)
	}
	if len(store.payments) != 1 {
		t.Fatalf("expected one committed payment, got %d", len(store.payments))
	}
	if got := store.orders[order.ID].Status; got != enums.OrderStatusPartiallyPaid {
		t.Fatalf("expected PARTIALLY_PAID, got %s", got)
	}
}

func TestConcurrentPaymentsSettleOrderOnce(t *testing.T) {
	order := models.Order{ID: uuid.New(), StoreID: uuid.New(), GrandTotal: money.MustParse("100.00"), Status: enums.OrderStatusOpen}
	store := newLockingStore(order)
	svc, pub, mu := newLockingService(t, store)

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.RecordPayment(context.Background(), uuid.New(), order.ID, RecordPaymentInput{
				Amount: money.MustParse("25.00"),
				Method: enums.PaymentMethodCash,
			})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	committed := store.orders[order.ID]
	if committed.Status != enums.OrderStatusPaid || committed.PaidAt == nil {
		t.Fatalf("expected PAID with paidAt, got %s %v", committed.Status, committed.PaidAt)
	}

	mu.Lock()
	defer mu.Unlock()
	paid := 0
	for _, e := range pub.types() {
		if e == enums.EventOrderPaid {
			paid++
		}
	}
	if paid != 1 {
		t.Fatalf("expected a single order_paid event, got %d", paid)
	}
}
