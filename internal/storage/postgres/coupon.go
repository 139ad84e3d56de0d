package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shop-orders/internal/domain/coupon"
)

const (
	findCouponsByCodesSQL = `SELECT id, offer_code, description, offer_type, discount_type,
		discount_value, min_discount_value, max_discount_value, min_order_value,
		start_date, end_date, is_active, usage_limit_per_user
		FROM coupons WHERE UPPER(offer_code) = ANY($1)`

	countOrdersByUserSQL = `SELECT COUNT(*) FROM order_details WHERE user_id = $1`

	countCouponUsageSQL = `SELECT coupon_id, COUNT(*) FROM order_coupons
		WHERE user_id = $1 AND coupon_id = ANY($2)
		GROUP BY coupon_id`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCodes returns coupons whose upper-cased code is among codes. Callers
// pass codes already upper-cased.
func (r *CouponRepository) FindByCodes(ctx context.Context, codes []string) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponsByCodesSQL, codes)
	if err != nil {
		return nil, fmt.Errorf("finding coupons by codes: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// CountOrdersByUser counts every order of the user, paid or not.
func (r *CouponRepository) CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countOrdersByUserSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders of user %s: %w", userID, err)
	}
	return int(n), nil
}

// CountUsageByUser counts order_coupons rows per coupon for the user.
func (r *CouponRepository) CountUsageByUser(ctx context.Context, userID uuid.UUID, couponIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx, countCouponUsageSQL, userID, couponIDs)
	if err != nil {
		return nil, fmt.Errorf("counting coupon usage: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int, len(couponIDs))
	for rows.Next() {
		var (
			id uuid.UUID
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning coupon usage: %w", err)
		}
		out[id] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counting coupon usage: %w", err)
	}
	return out, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		offerType    string
		discountType string
		limit        *int32
	)
	err := row.Scan(
		&c.ID, &c.OfferCode, &c.Description, &offerType, &discountType,
		&c.DiscountValue, &c.MinDiscountValue, &c.MaxDiscountValue, &c.MinOrderValue,
		&c.StartDate, &c.EndDate, &c.IsActive, &limit,
	)
	c.OfferType = coupon.OfferType(offerType)
	c.DiscountType = coupon.DiscountType(discountType)
	if limit != nil {
		n := int(*limit)
		c.UsageLimitPerUser = &n
	}
	return c, err
}

// InsertCoupons bulk inserts coupons, skipping codes that already exist
// case-insensitively. It returns the number of rows inserted.
func (r *CouponRepository) InsertCoupons(ctx context.Context, coupons []coupon.Coupon) (int64, error) {
	if len(coupons) == 0 {
		return 0, nil
	}
	b := psql.Insert("coupons").Columns(
		"id", "offer_code", "description", "offer_type", "discount_type",
		"discount_value", "min_discount_value", "max_discount_value", "min_order_value",
		"start_date", "end_date", "is_active", "usage_limit_per_user",
	)
	for _, c := range coupons {
		var limit *int32
		if c.UsageLimitPerUser != nil {
			n := int32(*c.UsageLimitPerUser)
			limit = &n
		}
		b = b.Values(
			c.ID, c.OfferCode, c.Description, string(c.OfferType), string(c.DiscountType),
			c.DiscountValue, c.MinDiscountValue, c.MaxDiscountValue, c.MinOrderValue,
			c.StartDate, c.EndDate, c.IsActive, limit,
		)
	}
	query, args, err := b.Suffix("ON CONFLICT ((UPPER(offer_code))) DO NOTHING").ToSql()
	if err != nil {
		return 0, fmt.Errorf("building coupon insert: %w", err)
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting coupons: %w", err)
	}
	return tag.RowsAffected(), nil
}
