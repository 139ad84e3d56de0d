// Package redis implements the distributed checkout lock on Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/shop-orders/internal/domain/order"
)

// luaReleaseIfMatch deletes the lock only while it still holds our token, so
// an expired lock re-acquired by another request is left alone.
const luaReleaseIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

var releaseScript = rd.NewScript(luaReleaseIfMatch)

// Config configures the Redis connection of CheckoutLock.
type Config struct {
	Addr     string        `usage:"Redis address host:port; empty disables the checkout lock"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	LockTTL  time.Duration `default:"30s" usage:"Expiry of a checkout lock" flag:"redis-lock-ttl"`
}

var _ order.Locker = (*CheckoutLock)(nil)

// CheckoutLock is a per-key mutex with expiry.
type CheckoutLock struct {
	rdb    rd.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewClient creates a go-redis client for cfg.
func NewClient(cfg Config) *rd.Client {
	return rd.NewClient(&rd.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewCheckoutLock returns a lock that namespaces its keys with "lock:".
func NewCheckoutLock(rdb rd.UniversalClient, ttl time.Duration) *CheckoutLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CheckoutLock{rdb: rdb, ttl: ttl, prefix: "lock:"}
}

// Lock acquires key or returns order.ErrLocked when it is already held.
func (l *CheckoutLock) Lock(ctx context.Context, key string) (func(context.Context), error) {
	key = l.prefix + key
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "acquire %s", key)
	}
	if !ok {
		return nil, order.ErrLocked
	}

	return func(ctx context.Context) {
		ctx = context.WithoutCancel(ctx)
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			zctx.From(ctx).Warn("Release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
