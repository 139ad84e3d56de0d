package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/apperr"
)

// Error codes reported by Validate.
const (
	CodeInvalidVariants  = "invalid_variants"
	CodeOutOfStock       = "out_of_stock_or_insufficient"
	CodeInvalidQuantity  = "invalid_quantity"
	CodeEmptyItems       = "empty_items"
	CodeQuantityTooLarge = "quantity_out_of_range"
)

// Validator checks requested lines against the catalog.
type Validator struct {
	variants Repository
}

// NewValidator creates a Validator backed by the given variant repository.
func NewValidator(variants Repository) *Validator {
	return &Validator{variants: variants}
}

// Validate fetches every referenced variant in one batch and returns one
// enriched line per variant, in order of first appearance. Quantities of
// repeated variants are summed before the stock and bound checks. It has no
// side effects.
func (v *Validator) Validate(ctx context.Context, reqs []Request) ([]Line, error) {
	if len(reqs) == 0 {
		return nil, apperr.Validation(CodeEmptyItems, "at least one item is required")
	}

	ids := make([]uuid.UUID, 0, len(reqs))
	qty := make(map[uuid.UUID]int, len(reqs))
	for _, r := range reqs {
		if r.Quantity < 1 || r.Quantity > MaxLineQuantity {
			return nil, apperr.Validation(CodeQuantityTooLarge,
				fmt.Sprintf("quantity for variant %s must be between 1 and %d", r.VariantID, MaxLineQuantity),
				r.VariantID.String(),
			)
		}
		if _, ok := qty[r.VariantID]; !ok {
			ids = append(ids, r.VariantID)
		}
		qty[r.VariantID] += r.Quantity
	}

	found, err := v.variants.GetVariants(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get variants")
	}

	byID := make(map[uuid.UUID]Variant, len(found))
	for _, variant := range found {
		byID[variant.ID] = variant
	}

	if len(byID) < len(ids) {
		var missing []string
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id.String())
			}
		}
		return nil, apperr.Validation(CodeInvalidVariants,
			"some items in your cart are no longer available, please refresh your cart",
			missing...,
		)
	}

	lines := make([]Line, len(ids))
	for i, id := range ids {
		variant := byID[id]
		if err := checkLine(variant, qty[id]); err != nil {
			return nil, err
		}
		lines[i] = Line{Variant: variant, Quantity: qty[id]}
	}
	return lines, nil
}

func checkLine(v Variant, qty int) error {
	if v.OutOfStock || v.TotalAvailableQuantity < qty {
		return apperr.Validation(CodeOutOfStock,
			fmt.Sprintf("%s is out of stock or has insufficient quantity", v.Name),
			v.ID.String(),
		)
	}
	if qty < v.MinQuantity || (v.MaxQuantity != nil && qty > *v.MaxQuantity) {
		msg := fmt.Sprintf("quantity for %s must be at least %d", v.Name, v.MinQuantity)
		if v.MaxQuantity != nil {
			msg = fmt.Sprintf("quantity for %s must be between %d and %d", v.Name, v.MinQuantity, *v.MaxQuantity)
		}
		return apperr.Validation(CodeInvalidQuantity, msg, v.ID.String())
	}
	return nil
}

// Subtotal sums price × quantity over lines.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}
