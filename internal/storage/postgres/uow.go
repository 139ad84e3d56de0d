package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shop-orders/internal/domain/order"
	"github.com/xenking/shop-orders/internal/domain/payment"
)

const (
	createOrderSQL = `INSERT INTO order_details (id, user_id, status, expected_delivery_date)
		VALUES ($1, $2, $3, $4)
		RETURNING order_number, created_at, updated_at`

	addAddressSQL = `INSERT INTO order_addresses (order_id, name, phone_number, address_line1,
		address_line2, landmark, city, state, pincode, lat, lng)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	addPaymentSQL = `INSERT INTO payment_details (id, order_id, status, amount, currency,
		gateway_order_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	addHistorySQL = `INSERT INTO order_histories (id, order_id, status, comment, updated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateStatusSQL = `UPDATE order_details
		SET status = $2, delivered_at = $3, cancellation_reason = $4, updated_at = $5
		WHERE id = $1`

	lockPaymentSQL = `SELECT id, order_id, status, amount, currency, gateway_order_id,
		gateway_payment_id, gateway_signature, method, created_at, updated_at
		FROM payment_details WHERE gateway_order_id = $1
		FOR UPDATE`

	capturePaymentSQL = `UPDATE payment_details
		SET status = $2, gateway_payment_id = $3, gateway_signature = $4, method = $5, updated_at = $6
		WHERE id = $1`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ order.Transactor = (*Transactor)(nil)

// Transactor opens order units of work on a pgx transaction.
type Transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Transactor that uses the given pool.
func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a read-committed transaction.
func (t *Transactor) Begin(ctx context.Context) (order.UnitOfWork, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &unitOfWork{tx: tx}, nil
}

type unitOfWork struct {
	tx pgx.Tx
}

func (u *unitOfWork) CreateOrder(ctx context.Context, o *order.Order) error {
	err := u.tx.QueryRow(ctx, createOrderSQL,
		o.ID, o.UserID, string(o.Status), o.ExpectedDeliveryDate,
	).Scan(&o.OrderNumber, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order %s: %w", o.ID, err)
	}
	return nil
}

func (u *unitOfWork) AddCharges(ctx context.Context, orderID uuid.UUID, charges []order.Charge) error {
	if len(charges) == 0 {
		return nil
	}
	b := sq.Insert("order_charges").
		Columns("order_id", "name", "type", "amount").
		PlaceholderFormat(sq.Dollar)
	for _, c := range charges {
		b = b.Values(orderID, c.Name, string(c.Type), c.Amount)
	}
	return u.execBuilder(ctx, b, "adding charges")
}

func (u *unitOfWork) AddItems(ctx context.Context, orderID uuid.UUID, items []order.Item) error {
	if len(items) == 0 {
		return nil
	}
	b := sq.Insert("order_items").
		Columns("id", "order_id", "product_id", "variant_id", "variant_name", "quantity", "price", "mrp").
		PlaceholderFormat(sq.Dollar)
	for _, it := range items {
		b = b.Values(it.ID, orderID, it.ProductID, it.VariantID, it.VariantName, it.Quantity, it.Price, it.MRP)
	}
	return u.execBuilder(ctx, b, "adding items")
}

func (u *unitOfWork) AddAddress(ctx context.Context, orderID uuid.UUID, a order.Address) error {
	_, err := u.tx.Exec(ctx, addAddressSQL,
		orderID, a.Name, a.PhoneNumber, a.AddressLine1,
		a.AddressLine2, a.Landmark, a.City, a.State, a.Pincode, a.Lat, a.Lng,
	)
	if err != nil {
		return fmt.Errorf("adding address to order %s: %w", orderID, err)
	}
	return nil
}

func (u *unitOfWork) AddCoupons(ctx context.Context, orderID uuid.UUID, coupons []order.AppliedCoupon) error {
	if len(coupons) == 0 {
		return nil
	}
	b := sq.Insert("order_coupons").
		Columns("order_id", "coupon_id", "user_id", "offer_code", "discount_type", "discount_amount").
		PlaceholderFormat(sq.Dollar)
	for _, c := range coupons {
		b = b.Values(orderID, c.CouponID, c.UserID, c.OfferCode, string(c.DiscountType), c.DiscountAmount)
	}
	return u.execBuilder(ctx, b, "adding coupons")
}

func (u *unitOfWork) AddPayment(ctx context.Context, p *payment.Payment) error {
	_, err := u.tx.Exec(ctx, addPaymentSQL,
		p.ID, p.OrderID, string(p.Status), p.Amount, p.Currency,
		p.GatewayOrderID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("adding payment for order %s: %w", p.OrderID, err)
	}
	return nil
}

func (u *unitOfWork) AddHistory(ctx context.Context, h order.HistoryEntry) error {
	_, err := u.tx.Exec(ctx, addHistorySQL,
		h.ID, h.OrderID, string(h.Status), h.Comment, string(h.UpdatedBy), h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("adding history to order %s: %w", h.OrderID, err)
	}
	return nil
}

func (u *unitOfWork) UpdateStatus(ctx context.Context, o *order.Order) error {
	tag, err := u.tx.Exec(ctx, updateStatusSQL,
		o.ID, string(o.Status), o.DeliveredAt, o.CancellationReason, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating status of order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) LockPayment(ctx context.Context, gatewayOrderID string) (*payment.Payment, error) {
	rows, err := u.tx.Query(ctx, lockPaymentSQL, gatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("locking payment %q: %w", gatewayOrderID, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("locking payment %q: %w", gatewayOrderID, err)
	}
	return &p, nil
}

func (u *unitOfWork) CapturePayment(ctx context.Context, p *payment.Payment) error {
	_, err := u.tx.Exec(ctx, capturePaymentSQL,
		p.ID, string(p.Status), p.GatewayPaymentID, p.GatewaySignature, string(p.Method), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("capturing payment %s: %w", p.ID, err)
	}
	return nil
}

func (u *unitOfWork) ClearCart(ctx context.Context, userID uuid.UUID) error {
	if _, err := u.tx.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of user %s: %w", userID, err)
	}
	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	return u.tx.Commit(ctx)
}

// Rollback is a no-op once the transaction has been committed.
func (u *unitOfWork) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (u *unitOfWork) execBuilder(ctx context.Context, b sq.InsertBuilder, op string) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	if _, err := u.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p      payment.Payment
		status string
		method string
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &status, &p.Amount, &p.Currency, &p.GatewayOrderID,
		&p.GatewayPaymentID, &p.GatewaySignature, &method, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Status = payment.Status(status)
	p.Method = payment.Method(method)
	return p, err
}
