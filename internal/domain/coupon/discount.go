package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount computes the discount of a single coupon for subtotal, rounded
// half-up to 2 places. It does not check eligibility.
func Discount(c Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscountValue != nil && c.MaxDiscountValue.IsPositive() {
			amount = decimal.Min(amount, *c.MaxDiscountValue)
		}
	case DiscountFixed:
		amount = c.DiscountValue
	default:
		amount = decimal.Zero
	}
	return floorAtZero(amount).Round(2)
}

// Stack sums per-coupon discounts, caps the sum at subtotal and rounds it.
func Stack(subtotal decimal.Decimal, discounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range discounts {
		total = total.Add(d)
	}
	return decimal.Min(total, floorAtZero(subtotal)).Round(2)
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
