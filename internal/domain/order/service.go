package order

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/shop-orders/internal/domain/address"
	"github.com/xenking/shop-orders/internal/domain/coupon"
	"github.com/xenking/shop-orders/internal/domain/inventory"
	"github.com/xenking/shop-orders/internal/domain/notification"
	"github.com/xenking/shop-orders/internal/domain/payment"
)

// ErrLocked is returned by a Locker when the key is held by another caller.
var ErrLocked = errors.New("lock is held")

// Inventory validates requested lines.
type Inventory interface {
	Validate(ctx context.Context, reqs []inventory.Request) ([]inventory.Line, error)
}

// CouponEvaluator evaluates offer codes for a user and subtotal.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, codes []string, userID uuid.UUID, subtotal decimal.Decimal) (*coupon.Evaluation, error)
}

// Locker serializes checkouts per key. The returned unlock must be called.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context), err error)
}

// Config holds non-dependency settings of the Service.
type Config struct {
	Currency         string
	DeliveryLeadTime time.Duration
	// GatewaySecret keys the payment callback signature.
	GatewaySecret string
	// NotifyTimeout bounds a single status notification.
	NotifyTimeout time.Duration
}

// Deps are the collaborators of the Service. Locker, Meter and Tracer are optional.
type Deps struct {
	Addresses address.Repository
	Inventory Inventory
	Coupons   CouponEvaluator
	Gateway   payment.Gateway
	Orders    Repository
	Tx        Transactor
	Notifier  notification.Sender
	Locker    Locker
	Meter     metric.Meter
	Tracer    trace.Tracer
}

// Service implements order placement, payment capture, status changes and reads.
type Service struct {
	addresses address.Repository
	inventory Inventory
	coupons   CouponEvaluator
	gateway   payment.Gateway
	orders    Repository
	tx        Transactor
	notifier  notification.Sender
	locker    Locker
	tracer    trace.Tracer
	metrics   *metrics
	cfg       Config
	now       func() time.Time
	newID     func() uuid.UUID

	wg sync.WaitGroup
}

// NewService creates a Service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	meter := deps.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("order")
	}
	m, err := newMetrics(meter)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("order")
	}
	return &Service{
		addresses: deps.Addresses,
		inventory: deps.Inventory,
		coupons:   deps.Coupons,
		gateway:   deps.Gateway,
		orders:    deps.Orders,
		tx:        deps.Tx,
		notifier:  deps.Notifier,
		locker:    deps.Locker,
		tracer:    tracer,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.New,
	}, nil
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

type metrics struct {
	created       metric.Int64Counter
	createFailed  metric.Int64Counter
	captured      metric.Int64Counter
	statusChanged metric.Int64Counter
}

func newMetrics(m metric.Meter) (*metrics, error) {
	var (
		out metrics
		err error
	)
	if out.created, err = m.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted")); err != nil {
		return nil, err
	}
	if out.createFailed, err = m.Int64Counter("orders.create_failed",
		metric.WithDescription("Order placements that failed")); err != nil {
		return nil, err
	}
	if out.captured, err = m.Int64Counter("payments.captured",
		metric.WithDescription("Payments captured")); err != nil {
		return nil, err
	}
	if out.statusChanged, err = m.Int64Counter("orders.status_changed",
		metric.WithDescription("Order status transitions")); err != nil {
		return nil, err
	}
	return &out, nil
}

// rollback releases a unit of work on every exit path.
func rollback(ctx context.Context, uow UnitOfWork) {
	_ = uow.Rollback(context.WithoutCancel(ctx))
}
