package postgres

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shop-orders/internal/domain/coupon"
	"github.com/xenking/shop-orders/internal/domain/order"
	"github.com/xenking/shop-orders/internal/domain/payment"
)

const (
	orderItemsSQL = `SELECT order_id, id, product_id, variant_id, variant_name, quantity, price, mrp
		FROM order_items WHERE order_id = ANY($1)`

	orderAddressesSQL = `SELECT order_id, name, phone_number, address_line1, address_line2,
		landmark, city, state, pincode, lat, lng
		FROM order_addresses WHERE order_id = ANY($1)`

	orderChargesSQL = `SELECT order_id, name, type, amount
		FROM order_charges WHERE order_id = ANY($1)`

	orderCouponsSQL = `SELECT order_id, coupon_id, user_id, offer_code, discount_type, discount_amount
		FROM order_coupons WHERE order_id = ANY($1) ORDER BY created_at`

	orderPaymentsSQL = `SELECT id, order_id, status, amount, currency, gateway_order_id,
		gateway_payment_id, gateway_signature, method, created_at, updated_at
		FROM payment_details WHERE order_id = ANY($1)`

	orderHistorySQL = `SELECT id, order_id, status, comment, updated_by, created_at
		FROM order_histories WHERE order_id = ANY($1) ORDER BY created_at, id`
)

// psql builds dollar-placeholder queries. uuid.UUID values go through
// sq.Expr because squirrel expands array-typed values of sq.Eq into IN lists.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var orderColumns = []string{
	"o.id", "o.user_id", "o.order_number", "o.status", "o.expected_delivery_date",
	"o.delivered_at", "o.cancellation_reason", "o.created_at", "o.updated_at",
	"u.first_name", "u.last_name", "u.email", "u.phone_number",
}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Get returns the full aggregate with history and the owning customer.
func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	query, args, err := psql.Select(orderColumns...).
		From("order_details o").
		Join("users u ON u.id = o.user_id").
		Where(sq.Expr("o.id = ?", id)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building order query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.loadChildren(ctx, orders, true); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByUser returns the user's orders whose payment left "created", newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, page order.Page) ([]order.Order, int, error) {
	where := sq.And{
		sq.Expr("o.user_id = ?", userID),
		sq.NotEq{"p.status": string(payment.StatusCreated)},
	}
	return r.list(ctx, where, "o.created_at DESC", page)
}

// List returns orders of all users matching the admin filter.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	where := sq.And{}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, sq.Eq{"o.status": statuses})
	}
	if f.UserID != nil {
		where = append(where, sq.Expr("o.user_id = ?", *f.UserID))
	}
	if f.PhoneNumber != "" {
		where = append(where, sq.Like{"u.phone_number": "%" + escapeLike(f.PhoneNumber) + "%"})
	}

	orderBy := "o.created_at DESC"
	if f.OrderNumber != "" {
		where = append(where, sq.Like{"o.order_number::text": escapeLike(f.OrderNumber) + "%"})
		orderBy = "o.order_number ASC"
	}
	return r.list(ctx, where, orderBy, f.Page)
}

func (r *OrderRepository) list(ctx context.Context, where sq.And, orderBy string, page order.Page) ([]order.Order, int, error) {
	base := psql.Select().
		From("order_details o").
		Join("users u ON u.id = o.user_id").
		Join("payment_details p ON p.order_id = o.id").
		Where(where)

	countQuery, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building count query: %w", err)
	}
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	query, args, err := base.Columns(orderColumns...).
		OrderBy(orderBy).
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building list query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.loadChildren(ctx, orders, false); err != nil {
		return nil, 0, err
	}
	return orders, int(total), nil
}

// loadChildren fills items, address, charges, coupons and payment of orders
// with one query per child table.
func (r *OrderRepository) loadChildren(ctx context.Context, orders []order.Order, withHistory bool) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	if err := eachRow(ctx, r.pool, orderItemsSQL, ids, func(row pgx.Rows) error {
		var (
			orderID uuid.UUID
			it      order.Item
			qty     int32
		)
		if err := row.Scan(&orderID, &it.ID, &it.ProductID, &it.VariantID, &it.VariantName, &qty, &it.Price, &it.MRP); err != nil {
			return err
		}
		it.Quantity = int(qty)
		o := byID[orderID]
		o.Items = append(o.Items, it)
		return nil
	}); err != nil {
		return fmt.Errorf("loading order items: %w", err)
	}

	if err := eachRow(ctx, r.pool, orderAddressesSQL, ids, func(row pgx.Rows) error {
		var (
			orderID uuid.UUID
			a       order.Address
		)
		if err := row.Scan(&orderID, &a.Name, &a.PhoneNumber, &a.AddressLine1, &a.AddressLine2,
			&a.Landmark, &a.City, &a.State, &a.Pincode, &a.Lat, &a.Lng); err != nil {
			return err
		}
		byID[orderID].Address = &a
		return nil
	}); err != nil {
		return fmt.Errorf("loading order addresses: %w", err)
	}

	if err := eachRow(ctx, r.pool, orderChargesSQL, ids, func(row pgx.Rows) error {
		var (
			orderID uuid.UUID
			c       order.Charge
			typ     string
		)
		if err := row.Scan(&orderID, &c.Name, &typ, &c.Amount); err != nil {
			return err
		}
		c.Type = order.ChargeType(typ)
		o := byID[orderID]
		o.Charges = append(o.Charges, c)
		return nil
	}); err != nil {
		return fmt.Errorf("loading order charges: %w", err)
	}

	if err := eachRow(ctx, r.pool, orderCouponsSQL, ids, func(row pgx.Rows) error {
		var (
			orderID uuid.UUID
			c       order.AppliedCoupon
			typ     string
		)
		if err := row.Scan(&orderID, &c.CouponID, &c.UserID, &c.OfferCode, &typ, &c.DiscountAmount); err != nil {
			return err
		}
		c.DiscountType = coupon.DiscountType(typ)
		o := byID[orderID]
		o.Coupons = append(o.Coupons, c)
		return nil
	}); err != nil {
		return fmt.Errorf("loading order coupons: %w", err)
	}

	rows, err := r.pool.Query(ctx, orderPaymentsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading order payments: %w", err)
	}
	payments, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return fmt.Errorf("loading order payments: %w", err)
	}
	for i := range payments {
		byID[payments[i].OrderID].Payment = &payments[i]
	}

	if !withHistory {
		return nil
	}
	rows, err = r.pool.Query(ctx, orderHistorySQL, ids)
	if err != nil {
		return fmt.Errorf("loading order history: %w", err)
	}
	history, err := pgx.CollectRows(rows, scanHistory)
	if err != nil {
		return fmt.Errorf("loading order history: %w", err)
	}
	for _, h := range history {
		o := byID[h.OrderID]
		o.History = append(o.History, h)
	}
	return nil
}

func eachRow(ctx context.Context, q querier, sql string, ids []uuid.UUID, fn func(pgx.Rows) error) error {
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		c      order.Customer
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.OrderNumber, &status, &o.ExpectedDeliveryDate,
		&o.DeliveredAt, &o.CancellationReason, &o.CreatedAt, &o.UpdatedAt,
		&c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber,
	)
	o.Status = order.Status(status)
	c.ID = o.UserID
	o.Customer = &c
	return o, err
}

func scanHistory(row pgx.CollectableRow) (order.HistoryEntry, error) {
	var (
		h         order.HistoryEntry
		status    string
		updatedBy string
	)
	err := row.Scan(&h.ID, &h.OrderID, &status, &h.Comment, &updatedBy, &h.CreatedAt)
	h.Status = order.Status(status)
	h.UpdatedBy = order.Actor(updatedBy)
	return h, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
