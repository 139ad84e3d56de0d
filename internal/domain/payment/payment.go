// Package payment models the local payment record and the contract of the
// external payment gateway.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no local payment matches a gateway order id.
var ErrNotFound = errors.New("payment not found")

// Status of a local payment record.
type Status string

const (
	StatusCreated  Status = "created"
	StatusCaptured Status = "captured"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
)

// Method is the instrument used to pay, as reported by the gateway.
type Method string

const (
	MethodCard       Method = "card"
	MethodNetbanking Method = "netbanking"
	MethodUPI        Method = "upi"
	MethodWallet     Method = "wallet"
	MethodCOD        Method = "cod"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodCard, MethodNetbanking, MethodUPI, MethodWallet, MethodCOD:
		return true
	}
	return false
}

// Payment is the local record of a gateway charge, one per order.
type Payment struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	Status           Status
	Amount           decimal.Decimal
	Currency         string
	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
	Method           Method
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Gateway-side statuses required before a capture is accepted.
const (
	GatewayOrderPaid       = "paid"
	GatewayPaymentCaptured = "captured"
)

// CreateOrderRequest asks the gateway for a provisional order.
type CreateOrderRequest struct {
	// Amount in minor currency units.
	Amount   int64
	Currency string
	Receipt  string
}

// GatewayOrder is the gateway's provisional charge, returned to the client.
type GatewayOrder struct {
	ID         string
	Amount     int64
	AmountPaid int64
	Currency   string
	Receipt    string
	Status     string
}

// GatewayPayment is the gateway's completed charge.
type GatewayPayment struct {
	ID      string
	OrderID string
	Amount  int64
	Status  string
	Method  Method
}

// Gateway is the external payment processor.
type Gateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*GatewayOrder, error)
	GetOrder(ctx context.Context, id string) (*GatewayOrder, error)
	GetPayment(ctx context.Context, id string) (*GatewayPayment, error)
}

// MinorUnits converts a decimal amount to the smallest currency unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
