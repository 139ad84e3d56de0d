//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/shop-orders/internal/domain/apperr"
	"github.com/xenking/shop-orders/internal/domain/auth"
	"github.com/xenking/shop-orders/internal/domain/coupon"
	"github.com/xenking/shop-orders/internal/domain/inventory"
	"github.com/xenking/shop-orders/internal/domain/order"
	"github.com/xenking/shop-orders/internal/domain/payment"
	"github.com/xenking/shop-orders/internal/storage/postgres"
)

const gatewaySecret = "integration-secret"

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	pool, err := postgres.NewPool(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.RunMigrations(ctx, pool))
	return pool
}

type seed struct {
	userID    uuid.UUID
	addressID uuid.UUID
	variantID uuid.UUID
}

func seedData(t *testing.T, pool *pgxpool.Pool) seed {
	t.Helper()
	ctx := context.Background()
	s := seed{userID: uuid.New(), addressID: uuid.New(), variantID: uuid.New()}

	_, err := pool.Exec(ctx, `INSERT INTO users (id, first_name, email, phone_number)
		VALUES ($1, 'Asha', 'asha@example.com', '9876543210')`, s.userID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO addresses (id, user_id, name, phone_number, address_line1, city, state, pincode, lat)
		VALUES ($1, $2, 'Asha', '9876543210', '12 MG Road', 'Bengaluru', 'KA', '560001', 12.97)`, s.addressID, s.userID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO product_variants (id, product_id, name, price, mrp, total_available_quantity, max_quantity)
		VALUES ($1, $2, 'Basmati Rice 1kg', 100.00, 120.00, 10, 5)`, s.variantID, uuid.New())
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO cart_items (user_id, variant_id, quantity) VALUES ($1, $2, 2)`, s.userID, s.variantID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO coupons (id, offer_code, offer_type, discount_type, discount_value,
		max_discount_value, start_date, end_date, usage_limit_per_user)
		VALUES ($1, 'Save10', 'general', 'percentage', 10, 15, now() - interval '1 day', now() + interval '1 day', 1)`, uuid.New())
	require.NoError(t, err)
	return s
}

type gateway struct {
	mu  sync.Mutex
	seq int
}

func (g *gateway) CreateOrder(_ context.Context, req payment.CreateOrderRequest) (*payment.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return &payment.GatewayOrder{ID: fmt.Sprintf("order_it%d", g.seq), Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

func (g *gateway) GetOrder(_ context.Context, id string) (*payment.GatewayOrder, error) {
	return &payment.GatewayOrder{ID: id, Status: payment.GatewayOrderPaid}, nil
}

func (g *gateway) GetPayment(_ context.Context, id string) (*payment.GatewayPayment, error) {
	return &payment.GatewayPayment{ID: id, Status: payment.GatewayPaymentCaptured, Method: payment.MethodCard}, nil
}

func newService(t *testing.T, pool *pgxpool.Pool) *order.Service {
	t.Helper()
	svc, err := order.NewService(order.Config{
		Currency:         "INR",
		DeliveryLeadTime: 48 * time.Hour,
		GatewaySecret:    gatewaySecret,
	}, order.Deps{
		Addresses: postgres.NewAddressRepository(pool),
		Inventory: inventory.NewValidator(postgres.NewVariantRepository(pool)),
		Coupons:   coupon.NewEvaluator(postgres.NewCouponRepository(pool)),
		Gateway:   &gateway{},
		Orders:    postgres.NewOrderRepository(pool),
		Tx:        postgres.NewTransactor(pool),
	})
	require.NoError(t, err)
	return svc
}

func TestOrderLifecycle(t *testing.T) {
	pool := startPostgres(t)
	s := seedData(t, pool)
	svc := newService(t, pool)
	ctx := context.Background()

	res, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:     s.userID,
		AddressID:  s.addressID,
		Items:      []inventory.Request{{VariantID: s.variantID, Quantity: 2}},
		OfferCodes: []string{"save10"},
		Charges:    []order.Charge{{Name: "Delivery", Type: order.ChargeDelivery, Amount: decimal.NewFromInt(20)}},
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(205).Equal(res.Totals.FinalAmount))
	assert.Equal(t, int64(1), res.Order.OrderNumber)

	admin := auth.Principal{Role: auth.RoleAdmin}
	got, err := svc.Get(ctx, admin, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
	require.Len(t, got.Items, 1)
	require.Len(t, got.Coupons, 1)
	assert.Equal(t, "Save10", got.Coupons[0].OfferCode)
	require.NotNil(t, got.Address)
	require.NotNil(t, got.Address.Lat)
	require.NotNil(t, got.Payment)
	assert.Equal(t, payment.StatusCreated, got.Payment.Status)
	require.Len(t, got.History, 1)
	assert.Equal(t, "Asha", got.Customer.FirstName)
	assert.True(t, decimal.NewFromInt(205).Equal(got.Totals().FinalAmount))

	page, err := order.NewPage(1, 10)
	require.NoError(t, err)
	list, err := svc.ListForUser(ctx, s.userID, page)
	require.NoError(t, err)
	assert.Zero(t, list.Total, "unpaid orders are hidden from the user")

	gwOrderID := res.GatewayOrder.ID
	verify := order.VerifyPaymentRequest{
		UserID:           s.userID,
		GatewayOrderID:   gwOrderID,
		GatewayPaymentID: "pay_it1",
		Signature:        payment.Sign(gatewaySecret, gwOrderID, "pay_it1"),
	}
	_, err = svc.VerifyPayment(ctx, verify)
	require.NoError(t, err)
	_, err = svc.VerifyPayment(ctx, verify)
	assert.Equal(t, order.CodeAlreadyCaptured, apperr.CodeOf(err))

	var cartRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM cart_items WHERE user_id = $1`, s.userID).Scan(&cartRows))
	assert.Zero(t, cartRows)

	list, err = svc.ListForUser(ctx, s.userID, page)
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, payment.MethodCard, list.Orders[0].Payment.Method)

	_, err = svc.UpdateStatus(ctx, order.UpdateStatusRequest{OrderID: res.Order.ID, Status: order.StatusCancelled, Comment: "out of area"})
	require.NoError(t, err)
	got, err = svc.Get(ctx, admin, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, "out of area", *got.CancellationReason)
	assert.Len(t, got.History, 2)

	all, err := svc.ListAll(ctx, order.Filter{Page: page, Statuses: []order.Status{order.StatusCancelled}, PhoneNumber: "98765"})
	require.NoError(t, err)
	assert.Equal(t, 1, all.Total)
	all, err = svc.ListAll(ctx, order.Filter{Page: page, OrderNumber: "2"})
	require.NoError(t, err)
	assert.Zero(t, all.Total)

	_, err = svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:     s.userID,
		AddressID:  s.addressID,
		Items:      []inventory.Request{{VariantID: s.variantID, Quantity: 1}},
		OfferCodes: []string{"SAVE10"},
	})
	assert.Equal(t, coupon.CodeUsageLimitSpent, apperr.CodeOf(err))
}

func TestAPIKeyRepository(t *testing.T) {
	pool := startPostgres(t)
	s := seedData(t, pool)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO api_keys (id, key_hash, name, user_id, role) VALUES ('k1', 'hash-1', 'ops', $1, 'admin')`, s.userID)
	require.NoError(t, err)

	repo := postgres.NewAPIKeyRepository(pool)
	info, err := repo.FindByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, s.userID, info.UserID)
	assert.Equal(t, auth.RoleAdmin, info.Role)

	_, err = repo.FindByHash(ctx, "missing")
	assert.Error(t, err)
}

func TestInsertCoupons(t *testing.T) {
	pool := startPostgres(t)
	seedData(t, pool)
	ctx := context.Background()
	repo := postgres.NewCouponRepository(pool)

	limit := 2
	maxDiscount := decimal.NewFromInt(40)
	now := time.Now().UTC().Truncate(time.Second)
	coupons := []coupon.Coupon{
		{
			ID: uuid.New(), OfferCode: "BULK20", OfferType: coupon.OfferGeneral,
			DiscountType: coupon.DiscountPercentage, DiscountValue: decimal.NewFromInt(20),
			MaxDiscountValue: &maxDiscount, StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
			IsActive: true, UsageLimitPerUser: &limit,
		},
		{
			ID: uuid.New(), OfferCode: "SAVE10", OfferType: coupon.OfferGeneral,
			DiscountType: coupon.DiscountFixed, DiscountValue: decimal.NewFromInt(99),
			StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour), IsActive: true,
		},
	}

	n, err := repo.InsertCoupons(ctx, coupons)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "existing code is skipped case-insensitively")

	found, err := repo.FindByCodes(ctx, []string{"BULK20", "SAVE10"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	for _, c := range found {
		switch c.OfferCode {
		case "BULK20":
			require.NotNil(t, c.MaxDiscountValue)
			assert.True(t, maxDiscount.Equal(*c.MaxDiscountValue))
			require.NotNil(t, c.UsageLimitPerUser)
			assert.Equal(t, 2, *c.UsageLimitPerUser)
		case "Save10":
			assert.True(t, decimal.NewFromInt(10).Equal(c.DiscountValue), "existing coupon is untouched")
		default:
			t.Fatalf("unexpected coupon %q", c.OfferCode)
		}
	}

	n, err = repo.InsertCoupons(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
