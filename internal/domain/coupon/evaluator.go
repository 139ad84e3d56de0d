package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/apperr"
)

// Evaluator validates offer codes for a user and computes the stacked discount.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

// Evaluate resolves codes, checks every coupon's eligibility for userID and
// subtotal, and returns the applied coupons with the capped total discount.
// It never mutates state: usage is recorded only when the order is persisted.
func (e *Evaluator) Evaluate(ctx context.Context, codes []string, userID uuid.UUID, subtotal decimal.Decimal) (*Evaluation, error) {
	codes = normalizeCodes(codes)
	if len(codes) == 0 {
		return &Evaluation{TotalDiscount: decimal.Zero}, nil
	}

	coupons, err := e.repo.FindByCodes(ctx, codes)
	if err != nil {
		return nil, errors.Wrap(err, "find coupons")
	}

	byCode := make(map[string]Coupon, len(coupons))
	for _, c := range coupons {
		byCode[strings.ToUpper(c.OfferCode)] = c
	}
	var invalid []string
	ordered := make([]Coupon, 0, len(codes))
	for _, code := range codes {
		c, ok := byCode[code]
		if !ok {
			invalid = append(invalid, code)
			continue
		}
		ordered = append(ordered, c)
	}
	if len(invalid) > 0 {
		return nil, apperr.Validation(CodeInvalidCodes,
			"the following coupon codes are invalid: "+strings.Join(invalid, ", "),
			invalid...,
		)
	}

	newUser, err := e.isNewUser(ctx, ordered, userID)
	if err != nil {
		return nil, err
	}
	usage, err := e.usage(ctx, ordered, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	result := &Evaluation{Applied: make([]Applied, 0, len(ordered))}
	amounts := make([]decimal.Decimal, 0, len(ordered))
	for _, c := range ordered {
		if err := checkEligible(c, subtotal, newUser, usage[c.ID], now); err != nil {
			return nil, err
		}
		amount := Discount(c, subtotal)
		amounts = append(amounts, amount)
		result.Applied = append(result.Applied, Applied{Coupon: c, DiscountAmount: amount})
	}
	result.TotalDiscount = Stack(subtotal, amounts...)

	return result, nil
}

// isNewUser counts prior orders once, and only when some coupon needs it.
func (e *Evaluator) isNewUser(ctx context.Context, coupons []Coupon, userID uuid.UUID) (bool, error) {
	for _, c := range coupons {
		if c.OfferType != OfferNewUser {
			continue
		}
		n, err := e.repo.CountOrdersByUser(ctx, userID)
		if err != nil {
			return false, errors.Wrap(err, "count user orders")
		}
		return n == 0, nil
	}
	return true, nil
}

func (e *Evaluator) usage(ctx context.Context, coupons []Coupon, userID uuid.UUID) (map[uuid.UUID]int, error) {
	var limited []uuid.UUID
	for _, c := range coupons {
		if hasUsageLimit(c) {
			limited = append(limited, c.ID)
		}
	}
	if len(limited) == 0 {
		return nil, nil
	}
	counts, err := e.repo.CountUsageByUser(ctx, userID, limited)
	if err != nil {
		return nil, errors.Wrap(err, "count coupon usage")
	}
	return counts, nil
}

func checkEligible(c Coupon, subtotal decimal.Decimal, newUser bool, used int, now time.Time) error {
	if !c.IsActive {
		return apperr.Validation(CodeInactive,
			fmt.Sprintf("coupon %q is not active", c.OfferCode), c.OfferCode)
	}
	if c.MinOrderValue.GreaterThan(subtotal) {
		return apperr.Validation(CodeMinOrderValue,
			fmt.Sprintf("coupon %q requires a minimum order value of %s", c.OfferCode, c.MinOrderValue.StringFixed(2)),
			c.OfferCode)
	}
	if c.OfferType == OfferNewUser && !newUser {
		return apperr.Validation(CodeNewUserOnly,
			fmt.Sprintf("coupon %q is only valid for new users", c.OfferCode), c.OfferCode)
	}
	if now.Before(c.StartDate) || now.After(c.EndDate) {
		return apperr.Validation(CodeOutsideWindow,
			fmt.Sprintf("coupon %q is expired or not yet active", c.OfferCode), c.OfferCode)
	}
	if hasUsageLimit(c) && used >= *c.UsageLimitPerUser {
		return apperr.Validation(CodeUsageLimitSpent,
			fmt.Sprintf("you have already used coupon %q the maximum number of times", c.OfferCode),
			c.OfferCode)
	}
	return nil
}

func hasUsageLimit(c Coupon) bool {
	return c.UsageLimitPerUser != nil && *c.UsageLimitPerUser > 0
}

// normalizeCodes trims, upper-cases and de-duplicates codes, keeping order.
func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
