package coupon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the subtotal, optionally capped.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a flat amount off the order.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// OfferType restricts who may apply a coupon.
type OfferType string

const (
	// OfferGeneral coupons apply to every user.
	OfferGeneral OfferType = "general"
	// OfferNewUser coupons apply only to users without prior orders.
	OfferNewUser OfferType = "new_user"
)

// Error codes reported by the Evaluator.
const (
	CodeInvalidCodes    = "invalid_coupon_codes"
	CodeInactive        = "coupon_inactive"
	CodeMinOrderValue   = "coupon_min_order_value"
	CodeNewUserOnly     = "coupon_new_user_only"
	CodeOutsideWindow   = "coupon_not_in_window"
	CodeUsageLimitSpent = "coupon_usage_limit_exceeded"
)

// Coupon is a catalog entity, independent of orders.
type Coupon struct {
	ID            uuid.UUID
	OfferCode     string
	Description   string
	OfferType     OfferType
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	// MinDiscountValue is informational; only the upper bound caps the discount.
	MinDiscountValue *decimal.Decimal
	MaxDiscountValue *decimal.Decimal
	MinOrderValue    decimal.Decimal
	StartDate        time.Time
	EndDate          time.Time
	IsActive         bool
	// UsageLimitPerUser is nil or 0 for unlimited use.
	UsageLimitPerUser *int
}

// Applied is a coupon accepted for an order with its computed discount.
type Applied struct {
	Coupon         Coupon
	DiscountAmount decimal.Decimal
}

// Evaluation is the output of evaluating a set of offer codes.
type Evaluation struct {
	Applied       []Applied
	TotalDiscount decimal.Decimal
}

// Repository provides read access to coupons and their usage audit trail.
type Repository interface {
	// FindByCodes returns the coupons matching codes (case-insensitive).
	FindByCodes(ctx context.Context, codes []string) ([]Coupon, error)
	// CountOrdersByUser counts all orders of the user regardless of status.
	CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int, error)
	// CountUsageByUser counts prior applications per coupon id for the user.
	CountUsageByUser(ctx context.Context, userID uuid.UUID, couponIDs []uuid.UUID) (map[uuid.UUID]int, error)
}
