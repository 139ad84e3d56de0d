package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/coupon"
	"github.com/xenking/shop-orders/internal/domain/payment"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// displayOffset is added to order_number wherever it is shown to customers.
const displayOffset = 1000

// Actor is the kind of party that changed an order's status.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorAdmin  Actor = "admin"
	ActorSystem Actor = "system"
)

// ChargeType enumerates additive order charges.
type ChargeType string

const ChargeDelivery ChargeType = "delivery"

// Valid reports whether t is a known charge type.
func (t ChargeType) Valid() bool { return t == ChargeDelivery }

// Order is the aggregate root of a placed order.
type Order struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	OrderNumber          int64
	Status               Status
	ExpectedDeliveryDate time.Time
	DeliveredAt          *time.Time
	CancellationReason   *string
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Items   []Item
	Address *Address
	Charges []Charge
	Coupons []AppliedCoupon
	Payment *payment.Payment
	History []HistoryEntry
	// Customer is populated on reads that join the owning user.
	Customer *Customer
}

// DisplayNumber is the order number shown to customers.
func (o *Order) DisplayNumber() int64 { return o.OrderNumber + displayOffset }

// Item is a line of an order with price snapshots taken at order time.
type Item struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	VariantID   uuid.UUID
	VariantName string
	Quantity    int
	Price       decimal.Decimal
	MRP         decimal.Decimal
}

// Address is the delivery address snapshot of an order.
type Address struct {
	Name         string
	PhoneNumber  string
	AddressLine1 string
	AddressLine2 string
	Landmark     string
	City         string
	State        string
	Pincode      string
	Lat          *float64
	Lng          *float64
}

// Charge is an additive charge such as delivery.
type Charge struct {
	Name   string
	Type   ChargeType
	Amount decimal.Decimal
}

// AppliedCoupon records a coupon applied to an order. These rows are the
// source of per-user usage counts.
type AppliedCoupon struct {
	CouponID       uuid.UUID
	UserID         uuid.UUID
	OfferCode      string
	DiscountType   coupon.DiscountType
	DiscountAmount decimal.Decimal
}

// HistoryEntry is one row of the append-only status log.
type HistoryEntry struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Status    Status
	Comment   string
	UpdatedBy Actor
	CreatedAt time.Time
}

// Customer is the owning user as seen by admins and notifications.
type Customer struct {
	ID          uuid.UUID
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
}

// Totals are the monetary components of an order.
type Totals struct {
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Charges     decimal.Decimal
	FinalAmount decimal.Decimal
}

// Totals recomputes the order's amounts from its persisted children.
func (o *Order) Totals() Totals {
	subtotal := decimal.Zero
	for _, it := range o.Items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	discounts := make([]decimal.Decimal, len(o.Coupons))
	for i, c := range o.Coupons {
		discounts[i] = c.DiscountAmount
	}
	discount := coupon.Stack(subtotal, discounts...)
	charges := sumCharges(o.Charges)
	return Totals{
		Subtotal:    subtotal.Round(2),
		Discount:    discount,
		Charges:     charges,
		FinalAmount: finalAmount(subtotal, discount, charges),
	}
}

func sumCharges(charges []Charge) decimal.Decimal {
	total := decimal.Zero
	for _, c := range charges {
		total = total.Add(c.Amount)
	}
	return total.Round(2)
}

// finalAmount is subtotal - discount + charges, floored at zero.
func finalAmount(subtotal, discount, charges decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount).Add(charges)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total.Round(2)
}

// Repository provides read access to persisted orders.
type Repository interface {
	// Get returns the full aggregate including history and customer.
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	// ListByUser returns the user's orders whose payment left "created", newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, page Page) ([]Order, int, error)
	// List returns orders matching the admin filter.
	List(ctx context.Context, filter Filter) ([]Order, int, error)
}

// Transactor opens units of work.
type Transactor interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork groups writes into one transaction. Callers must Commit on
// success and always Rollback; Rollback after Commit is a no-op.
type UnitOfWork interface {
	// CreateOrder inserts the order row and assigns OrderNumber and timestamps.
	CreateOrder(ctx context.Context, o *Order) error
	AddCharges(ctx context.Context, orderID uuid.UUID, charges []Charge) error
	AddItems(ctx context.Context, orderID uuid.UUID, items []Item) error
	AddAddress(ctx context.Context, orderID uuid.UUID, addr Address) error
	AddCoupons(ctx context.Context, orderID uuid.UUID, coupons []AppliedCoupon) error
	AddPayment(ctx context.Context, p *payment.Payment) error
	AddHistory(ctx context.Context, h HistoryEntry) error
	UpdateStatus(ctx context.Context, o *Order) error

	// LockPayment loads the payment for a gateway order id for update.
	LockPayment(ctx context.Context, gatewayOrderID string) (*payment.Payment, error)
	CapturePayment(ctx context.Context, p *payment.Payment) error
	ClearCart(ctx context.Context, userID uuid.UUID) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
