package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/domain/coupon"
	"github.com/xenking/shop-orders/internal/domain/inventory"
	"github.com/xenking/shop-orders/internal/domain/notification"
	"github.com/xenking/shop-orders/internal/domain/order"
	"github.com/xenking/shop-orders/internal/gateway/razorpay"
	"github.com/xenking/shop-orders/internal/handler"
	"github.com/xenking/shop-orders/internal/notify"
	"github.com/xenking/shop-orders/internal/storage/postgres"
	"github.com/xenking/shop-orders/internal/storage/redis"
	"github.com/xenking/shop-orders/pkg/health"
	"github.com/xenking/shop-orders/pkg/httpmiddleware"
)

const serviceName = "shop-orders"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.Database.MaxConns)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadiness(health.Check{Name: "postgres", Timeout: 5 * time.Second, Func: health.PingCheck(pool)})
	healthSvc.AddLiveness(health.Check{Name: "goroutines", Func: health.GoroutineCountCheck(10000)})
	healthSvc.AddLiveness(health.Check{Name: "gc_pause", Func: health.GCMaxPauseCheck(time.Second)})

	// Optional Redis: checkout lock and shared rate limit window.
	var (
		locker  order.Locker
		limiter httpmiddleware.Limiter
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(cfg.Redis)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		healthSvc.AddReadiness(health.Check{Name: "redis", Timeout: 2 * time.Second, Func: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		locker = redis.NewCheckoutLock(rdb, cfg.Redis.LockTTL)
		limiter = redis.NewRateLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
		lg.Info("Redis enabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		mem := httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		go mem.RunEviction(ctx)
		limiter = mem
	}

	notifier, closeNotifier, err := newNotifier(cfg.Notify, healthSvc)
	if err != nil {
		return errors.Wrap(err, "create notifier")
	}
	defer closeNotifier()

	healthSvc.Start(ctx, 10*time.Second)

	// Domain services.
	orderService, err := order.NewService(order.Config{
		Currency:         cfg.Payment.Currency,
		DeliveryLeadTime: cfg.Order.DeliveryLeadTime,
		GatewaySecret:    cfg.Payment.KeySecret,
		NotifyTimeout:    cfg.Order.NotifyTimeout,
	}, order.Deps{
		Addresses: postgres.NewAddressRepository(pool),
		Inventory: inventory.NewValidator(postgres.NewVariantRepository(pool)),
		Coupons:   coupon.NewEvaluator(postgres.NewCouponRepository(pool)),
		Gateway:   razorpay.New(cfg.Payment.Gateway()),
		Orders:    postgres.NewOrderRepository(pool),
		Tx:        postgres.NewTransactor(pool),
		Notifier:  notifier,
		Locker:    locker,
		Meter:     m.MeterProvider().Meter(serviceName),
		Tracer:    m.TracerProvider().Tracer(serviceName),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	security := handler.NewSecurity(postgres.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper))
	h := handler.NewHandler(orderService, security)

	// Route-aware middlewares run inside the router so the matched pattern
	// is available once the handler returns.
	r := chi.NewRouter()
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)
	r.Use(
		httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.LogRequests(),
	)
	healthSvc.Mount(r)
	r.Group(func(r chi.Router) {
		r.Use(httpmiddleware.RateLimit(limiter, nil))
		h.Mount(r)
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Payment.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		orderService.Wait()
		healthSvc.Stop()
	}()

	healthSvc.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newNotifier picks the notification transport and registers its readiness
// check. The returned close func is always non-nil.
func newNotifier(cfg NotifyConfig, h *health.Health) (notification.Sender, func(), error) {
	switch {
	case cfg.AMQP.URL != "":
		pub, err := notify.DialAMQP(cfg.AMQP)
		if err != nil {
			return nil, nil, err
		}
		h.AddReadiness(health.Check{Name: "amqp", Func: health.PingCheck(pub)})
		return pub, func() { _ = pub.Close() }, nil
	case cfg.SMTP.Host != "":
		s, err := notify.NewSMTPSender(cfg.SMTP)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return notify.LogSender{}, func() {}, nil
	}
}
