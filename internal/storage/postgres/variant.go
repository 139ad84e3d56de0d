package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shop-orders/internal/domain/inventory"
)

const getVariantsSQL = `SELECT id, product_id, name, price, mrp, out_of_stock,
	total_available_quantity, min_quantity, max_quantity
	FROM product_variants WHERE id = ANY($1)`

var _ inventory.Repository = (*VariantRepository)(nil)

// VariantRepository implements inventory.Repository backed by PostgreSQL.
type VariantRepository struct {
	pool *pgxpool.Pool
}

// NewVariantRepository returns a VariantRepository that uses the given pool.
func NewVariantRepository(pool *pgxpool.Pool) *VariantRepository {
	return &VariantRepository{pool: pool}
}

// GetVariants returns the variants matching any of ids in one round trip.
func (r *VariantRepository) GetVariants(ctx context.Context, ids []uuid.UUID) ([]inventory.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

func scanVariant(row pgx.CollectableRow) (inventory.Variant, error) {
	var (
		v      inventory.Variant
		maxQty *int32
		avail  int32
		minQty int32
	)
	err := row.Scan(
		&v.ID, &v.ProductID, &v.Name, &v.Price, &v.MRP, &v.OutOfStock,
		&avail, &minQty, &maxQty,
	)
	v.TotalAvailableQuantity = int(avail)
	v.MinQuantity = int(minQty)
	if maxQty != nil {
		m := int(*maxQty)
		v.MaxQuantity = &m
	}
	return v, err
}
