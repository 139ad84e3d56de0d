package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/address"
	"github.com/xenking/shop-orders/internal/domain/coupon"
	"github.com/xenking/shop-orders/internal/domain/inventory"
	"github.com/xenking/shop-orders/internal/domain/notification"
	"github.com/xenking/shop-orders/internal/domain/payment"
)

var errSimulated = errors.New("simulated failure")

// memStore is an in-memory database. Writes made through a memTx become
// visible only on Commit.
type memStore struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]*Order
	payments   map[string]*payment.Payment
	carts      map[uuid.UUID]int
	customers  map[uuid.UUID]*Customer
	variants   map[uuid.UUID]inventory.Variant
	addresses  map[uuid.UUID]address.Address
	coupons    []coupon.Coupon
	nextNumber int64
	// failOn makes the named unit-of-work operation fail.
	failOn string
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[uuid.UUID]*Order),
		payments:  make(map[string]*payment.Payment),
		carts:     make(map[uuid.UUID]int),
		customers: make(map[uuid.UUID]*Customer),
		variants:  make(map[uuid.UUID]inventory.Variant),
		addresses: make(map[uuid.UUID]address.Address),
	}
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) historyOf(id uuid.UUID) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	return append([]HistoryEntry(nil), o.History...)
}

// --- order.Transactor ---

func (s *memStore) Begin(_ context.Context) (UnitOfWork, error) {
	if s.failOn == "Begin" {
		return nil, errSimulated
	}
	return &memTx{s: s}, nil
}

type memTx struct {
	s    *memStore
	ops  []func()
	done bool
}

func (t *memTx) fail(op string) error {
	if t.s.failOn == op {
		return errSimulated
	}
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, o *Order) error {
	if err := t.fail("CreateOrder"); err != nil {
		return err
	}
	t.s.mu.Lock()
	t.s.nextNumber++
	o.OrderNumber = t.s.nextNumber
	t.s.mu.Unlock()
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	stored := &Order{
		ID:                   o.ID,
		UserID:               o.UserID,
		OrderNumber:          o.OrderNumber,
		Status:               o.Status,
		ExpectedDeliveryDate: o.ExpectedDeliveryDate,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
	t.ops = append(t.ops, func() { t.s.orders[o.ID] = stored })
	return nil
}

func (t *memTx) AddCharges(_ context.Context, id uuid.UUID, charges []Charge) error {
	if err := t.fail("AddCharges"); err != nil {
		return err
	}
	t.ops = append(t.ops, func() { t.s.orders[id].Charges = append([]Charge(nil), charges...) })
	return nil
}

func (t *memTx) AddItems(_ context.Context, id uuid.UUID, items []Item) error {
	if err := t.fail("AddItems"); err != nil {
		return err
	}
	t.ops = append(t.ops, func() { t.s.orders[id].Items = append([]Item(nil), items...) })
	return nil
}

func (t *memTx) AddAddress(_ context.Context, id uuid.UUID, addr Address) error {
	if err := t.fail("AddAddress"); err != nil {
		return err
	}
	t.ops = append(t.ops, func() { t.s.orders[id].Address = &addr })
	return nil
}

func (t *memTx) AddCoupons(_ context.Context, id uuid.UUID, coupons []AppliedCoupon) error {
	if err := t.fail("AddCoupons"); err != nil {
		return err
	}
	t.ops = append(t.ops, func() { t.s.orders[id].Coupons = append([]AppliedCoupon(nil), coupons...) })
	return nil
}

func (t *memTx) AddPayment(_ context.Context, p *payment.Payment) error {
	if err := t.fail("AddPayment"); err != nil {
		return err
	}
	cp := *p
	t.ops = append(t.ops, func() {
		t.s.payments[cp.GatewayOrderID] = &cp
		t.s.orders[cp.OrderID].Payment = &cp
	})
	return nil
}

func (t *memTx) AddHistory(_ context.Context, h HistoryEntry) error {
	if err := t.fail("AddHistory"); err != nil {
		return err
	}
	t.ops = append(t.ops, func() {
		o := t.s.orders[h.OrderID]
		o.History = append(o.History, h)
	})
	return nil
}

func (t *memTx) UpdateStatus(_ context.Context, o *Order) error {
	if err := t.fail("UpdateStatus"); err != nil {
		return err
	}
	status, delivered, reason := o.Status, o.DeliveredAt, o.CancellationReason
	t.ops = append(t.ops, func() {
		stored := t.s.orders[o.ID]
		stored.Status = status
		stored.DeliveredAt = delivered
		stored.CancellationReason = reason
	})
	return nil
}

func (t *memTx) LockPayment(_ context.Context, gatewayOrderID string) (*payment.Payment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.payments[gatewayOrderID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) CapturePayment(_ context.Context, p *payment.Payment) error {
	if err := t.fail("CapturePayment"); err != nil {
		return err
	}
	cp := *p
	t.ops = append(t.ops, func() {
		t.s.payments[cp.GatewayOrderID] = &cp
		if o, ok := t.s.orders[cp.OrderID]; ok {
			o.Payment = &cp
		}
	})
	return nil
}

func (t *memTx) ClearCart(_ context.Context, userID uuid.UUID) error {
	if err := t.fail("ClearCart"); err != nil {
		return err
	}
	t.ops = append(t.ops, func() { delete(t.s.carts, userID) })
	return nil
}

func (t *memTx) Commit(_ context.Context) error {
	if err := t.fail("Commit"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, op := range t.ops {
		op()
	}
	t.ops = nil
	t.done = true
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	t.ops = nil
	return nil
}

// --- order.Repository ---

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.History = append([]HistoryEntry(nil), o.History...)
	if c, ok := s.customers[o.UserID]; ok {
		cc := *c
		cp.Customer = &cc
	}
	return &cp, nil
}

func (s *memStore) ListByUser(_ context.Context, userID uuid.UUID, page Page) ([]Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID && o.Payment != nil && o.Payment.Status != payment.StatusCreated {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber > out[j].OrderNumber })
	return paginate(out, page), len(out), nil
}

func (s *memStore) List(_ context.Context, f Filter) ([]Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, o.Status) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return paginate(out, f.Page), len(out), nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func paginate(orders []Order, p Page) []Order {
	start := p.Offset()
	if start >= len(orders) {
		return nil
	}
	end := min(start+p.Limit, len(orders))
	return orders[start:end]
}

// --- address.Repository ---

func (s *memStore) FindForUser(_ context.Context, id, userID uuid.UUID) (*address.Address, error) {
	a, ok := s.addresses[id]
	if !ok || a.UserID != userID {
		return nil, address.ErrNotFound
	}
	return &a, nil
}

// --- inventory.Repository ---

func (s *memStore) GetVariants(_ context.Context, ids []uuid.UUID) ([]inventory.Variant, error) {
	var out []inventory.Variant
	for _, id := range ids {
		if v, ok := s.variants[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// --- coupon.Repository backed by committed order coupons ---

type memCoupons struct{ s *memStore }

func (m memCoupons) FindByCodes(_ context.Context, codes []string) ([]coupon.Coupon, error) {
	var out []coupon.Coupon
	for _, c := range m.s.coupons {
		for _, code := range codes {
			if strings.EqualFold(c.OfferCode, code) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (m memCoupons) CountOrdersByUser(_ context.Context, userID uuid.UUID) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := 0
	for _, o := range m.s.orders {
		if o.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m memCoupons) CountUsageByUser(_ context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make(map[uuid.UUID]int)
	for _, o := range m.s.orders {
		for _, c := range o.Coupons {
			if c.UserID != userID {
				continue
			}
			for _, id := range ids {
				if c.CouponID == id {
					out[id]++
				}
			}
		}
	}
	return out, nil
}

// --- payment.Gateway ---

type fakeGateway struct {
	mu          sync.Mutex
	created     []payment.CreateOrderRequest
	createErr   error
	fetchErr    error
	orderStatus string
	payStatus   string
	method      payment.Method
	seq         int
}

func (g *fakeGateway) CreateOrder(_ context.Context, req payment.CreateOrderRequest) (*payment.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	g.seq++
	return &payment.GatewayOrder{
		ID:       fmt.Sprintf("order_gw%d", g.seq),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) GetOrder(_ context.Context, id string) (*payment.GatewayOrder, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return &payment.GatewayOrder{ID: id, Status: g.orderStatus}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*payment.GatewayPayment, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return &payment.GatewayPayment{ID: id, Status: g.payStatus, Method: g.method}, nil
}

// --- notification.Sender ---

type fakeSender struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg notification.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeSender) messages() []notification.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification.Message(nil), f.sent...)
}

// --- Locker ---

type fakeLocker struct {
	held     map[string]bool
	unlocked []string
}

func (l *fakeLocker) Lock(_ context.Context, key string) (func(context.Context), error) {
	if l.held[key] {
		return nil, ErrLocked
	}
	return func(context.Context) { l.unlocked = append(l.unlocked, key) }, nil
}

// --- fixture ---

const testSecret = "gateway-secret"

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memStore
	gateway *fakeGateway
	sender  *fakeSender
	svc     *Service

	userID    uuid.UUID
	addressID uuid.UUID
	variant   inventory.Variant
}

func newFixture(t interface{ Fatalf(string, ...any) }) *fixture {
	store := newMemStore()
	gw := &fakeGateway{orderStatus: "paid", payStatus: "captured", method: payment.MethodUPI}
	sender := &fakeSender{}

	userID := uuid.New()
	maxQty := 5
	variant := inventory.Variant{
		ID:                     uuid.New(),
		ProductID:              uuid.New(),
		Name:                   "Basmati Rice 1kg",
		Price:                  decimal.NewFromInt(100),
		MRP:                    decimal.NewFromInt(120),
		TotalAvailableQuantity: 10,
		MinQuantity:            1,
		MaxQuantity:            &maxQty,
	}
	store.variants[variant.ID] = variant

	addrID := uuid.New()
	lat := 12.97
	store.addresses[addrID] = address.Address{
		ID:           addrID,
		UserID:       userID,
		Name:         "Asha",
		PhoneNumber:  "9876543210",
		AddressLine1: "12 MG Road",
		City:         "Bengaluru",
		State:        "KA",
		Pincode:      "560001",
		Lat:          &lat,
	}
	store.customers[userID] = &Customer{ID: userID, FirstName: "Asha", Email: "asha@example.com"}
	store.carts[userID] = 3

	cv := coupon.NewEvaluator(memCoupons{s: store})

	svc, err := NewService(Config{
		Currency:         "INR",
		DeliveryLeadTime: 72 * time.Hour,
		GatewaySecret:    testSecret,
	}, Deps{
		Addresses: store,
		Inventory: inventory.NewValidator(store),
		Coupons:   cv,
		Gateway:   gw,
		Orders:    store,
		Tx:        store,
		Notifier:  sender,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.now = func() time.Time { return testNow }

	return &fixture{
		store:     store,
		gateway:   gw,
		sender:    sender,
		svc:       svc,
		userID:    userID,
		addressID: addrID,
		variant:   variant,
	}
}

func (f *fixture) addCoupon(c coupon.Coupon) {
	f.store.coupons = append(f.store.coupons, c)
}

func (f *fixture) request(qty int, codes ...string) PlaceOrderRequest {
	return PlaceOrderRequest{
		UserID:     f.userID,
		AddressID:  f.addressID,
		Items:      []inventory.Request{{VariantID: f.variant.ID, Quantity: qty}},
		OfferCodes: codes,
		Charges:    []Charge{{Name: "Delivery", Type: ChargeDelivery, Amount: decimal.NewFromInt(20)}},
	}
}
