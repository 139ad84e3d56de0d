package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-orders/internal/domain/auth"
	"github.com/xenking/shop-orders/internal/domain/coupon"
	"github.com/xenking/shop-orders/internal/handler"
	"github.com/xenking/shop-orders/internal/storage/postgres"
)

// Fixed identifiers keep reruns idempotent.
var (
	customerID = uuid.MustParse("8f14e45f-ceea-467f-a0e6-1b3c5d7e9a01")
	adminID    = uuid.MustParse("8f14e45f-ceea-467f-a0e6-1b3c5d7e9a02")
	addressID  = uuid.MustParse("c9f0f895-fb98-4b91-9c6e-2a7d1e4f8b01")
	riceID     = uuid.MustParse("45c48cce-2e2d-4fbd-8a8e-3c1b5f6d7a01")
	gheeID     = uuid.MustParse("45c48cce-2e2d-4fbd-8a8e-3c1b5f6d7a02")
	productID  = uuid.MustParse("d3d94468-02a4-4c1f-9f4b-6e2a8c0b1d01")
)

type options struct {
	databaseURL string
	userKey     string
	adminKey    string
	pepper      string
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.userKey, "user-key", "", "API key for the seeded customer (or SHOP_SEED_USER_KEY env)")
	flag.StringVar(&opts.adminKey, "admin-key", "", "API key for the seeded admin (or SHOP_SEED_ADMIN_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	envDefault(&opts.databaseURL, "DATABASE_URL")
	envDefault(&opts.userKey, "SHOP_SEED_USER_KEY")
	envDefault(&opts.adminKey, "SHOP_SEED_ADMIN_KEY")
	envDefault(&opts.pepper, "SHOP_API_KEY_PEPPER")

	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.userKey == "" || opts.adminKey == "" {
		slog.Error("both API keys are required: set --user-key and --admin-key")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func envDefault(v *string, key string) {
	if *v == "" {
		*v = os.Getenv(key)
	}
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL, 2)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedUsers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedAPIKeys(ctx, pool, opts); err != nil {
		return errors.Wrap(err, "seed api keys")
	}
	if err := seedCatalog(ctx, pool); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding users")

	users := []struct {
		id                      uuid.UUID
		first, last, email, tel string
	}{
		{customerID, "Asha", "Rao", "asha@example.com", "9876543210"},
		{adminID, "Store", "Admin", "admin@example.com", "9000000000"},
	}
	for _, u := range users {
		if _, err := pool.Exec(ctx, `INSERT INTO users (id, first_name, last_name, email, phone_number)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
				email = EXCLUDED.email, phone_number = EXCLUDED.phone_number`,
			u.id, u.first, u.last, u.email, u.tel); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.email)
		}
		slog.Info("upserted user", slog.String("id", u.id.String()), slog.String("email", u.email))
	}

	if _, err := pool.Exec(ctx, `INSERT INTO addresses (id, user_id, name, phone_number, address_line1,
			address_line2, landmark, city, state, pincode, lat, lng)
		VALUES ($1, $2, 'Asha Rao', '9876543210', '12 MG Road', 'Flat 4B', 'Near metro', 'Bengaluru', 'KA', '560001', 12.9716, 77.5946)
		ON CONFLICT (id) DO NOTHING`, addressID, customerID); err != nil {
		return errors.Wrap(err, "insert address")
	}

	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, opts options) error {
	slog.Info("seeding API keys")

	keys := []struct {
		id, name, key string
		userID        uuid.UUID
		role          auth.Role
	}{
		{"customer", "Seeded customer key", opts.userKey, customerID, auth.RoleUser},
		{"admin", "Seeded admin key", opts.adminKey, adminID, auth.RoleAdmin},
	}
	for _, k := range keys {
		hash := handler.HashKey([]byte(opts.pepper), k.key)
		if _, err := pool.Exec(ctx, `INSERT INTO api_keys (id, key_hash, name, user_id, role, active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
				user_id = EXCLUDED.user_id, role = EXCLUDED.role, active = TRUE`,
			k.id, hash, k.name, k.userID, string(k.role)); err != nil {
			return errors.Wrapf(err, "upsert api key %s", k.id)
		}
		slog.Info("upserted API key", slog.String("id", k.id), slog.String("role", string(k.role)))
	}

	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding product variants")

	variants := []struct {
		id         uuid.UUID
		name       string
		price, mrp decimal.Decimal
		stock      int32
		maxQty     *int32
	}{
		{riceID, "Basmati Rice 1kg", decimal.NewFromInt(100), decimal.NewFromInt(120), 50, ptr[int32](5)},
		{gheeID, "Cow Ghee 500ml", decimal.RequireFromString("349.50"), decimal.NewFromInt(399), 20, nil},
	}
	for _, v := range variants {
		if _, err := pool.Exec(ctx, `INSERT INTO product_variants (id, product_id, name, price, mrp,
				total_available_quantity, max_quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, mrp = EXCLUDED.mrp,
				total_available_quantity = EXCLUDED.total_available_quantity, max_quantity = EXCLUDED.max_quantity`,
			v.id, productID, v.name, v.price, v.mrp, v.stock, v.maxQty); err != nil {
			return errors.Wrapf(err, "upsert variant %s", v.name)
		}
		slog.Info("upserted variant", slog.String("id", v.id.String()), slog.String("name", v.name))
	}

	if _, err := pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, customerID); err != nil {
		return errors.Wrap(err, "reset cart")
	}
	if _, err := pool.Exec(ctx, `INSERT INTO cart_items (user_id, variant_id, quantity) VALUES ($1, $2, 2), ($1, $3, 1)`,
		customerID, riceID, gheeID); err != nil {
		return errors.Wrap(err, "fill cart")
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding coupons")

	start := time.Now().UTC().Truncate(24 * time.Hour)
	end := start.AddDate(1, 0, 0)
	coupons := []coupon.Coupon{
		{
			ID:                uuid.MustParse("1679091c-5a88-4faf-8fb5-2c6a0d1e3f01"),
			OfferCode:         "SAVE10",
			Description:       "10% off, up to 15",
			OfferType:         coupon.OfferGeneral,
			DiscountType:      coupon.DiscountPercentage,
			DiscountValue:     decimal.NewFromInt(10),
			MaxDiscountValue:  ptr(decimal.NewFromInt(15)),
			StartDate:         start,
			EndDate:           end,
			IsActive:          true,
			UsageLimitPerUser: ptr(1),
		},
		{
			ID:            uuid.MustParse("1679091c-5a88-4faf-8fb5-2c6a0d1e3f02"),
			OfferCode:     "WELCOME",
			Description:   "50 off your first order",
			OfferType:     coupon.OfferNewUser,
			DiscountType:  coupon.DiscountFixed,
			DiscountValue: decimal.NewFromInt(50),
			StartDate:     start,
			EndDate:       end,
			IsActive:      true,
		},
		{
			ID:            uuid.MustParse("1679091c-5a88-4faf-8fb5-2c6a0d1e3f03"),
			OfferCode:     "FLAT50",
			Description:   "50 off orders above 500",
			OfferType:     coupon.OfferGeneral,
			DiscountType:  coupon.DiscountFixed,
			DiscountValue: decimal.NewFromInt(50),
			MinOrderValue: decimal.NewFromInt(500),
			StartDate:     start,
			EndDate:       end,
			IsActive:      true,
		},
	}

	n, err := repo.InsertCoupons(ctx, coupons)
	if err != nil {
		return err
	}

	slog.Info("coupons seeded", slog.Int64("inserted", n), slog.Int("total", len(coupons)))

	return nil
}

func ptr[T any](v T) *T { return &v }
