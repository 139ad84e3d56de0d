// Package inventory resolves requested line items against the variant catalog
// and checks stock and per-variant quantity bounds.
package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxLineQuantity bounds a single requested line.
const MaxLineQuantity = 1000

// Variant is a purchasable SKU under a product.
type Variant struct {
	ID                     uuid.UUID
	ProductID              uuid.UUID
	Name                   string
	Price                  decimal.Decimal
	MRP                    decimal.Decimal
	OutOfStock             bool
	TotalAvailableQuantity int
	MinQuantity            int
	// MaxQuantity is nil when the variant has no upper bound.
	MaxQuantity *int
}

// Request is a single requested line.
type Request struct {
	VariantID uuid.UUID
	Quantity  int
}

// Line is a validated line carrying the variant snapshot used for pricing.
type Line struct {
	Variant  Variant
	Quantity int
}

// Total returns price × quantity.
func (l Line) Total() decimal.Decimal {
	return l.Variant.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Repository provides batch lookup of variants.
type Repository interface {
	// GetVariants returns the variants that exist among ids, in any order.
	GetVariants(ctx context.Context, ids []uuid.UUID) ([]Variant, error)
}
