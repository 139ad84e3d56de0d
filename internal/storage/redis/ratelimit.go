package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"

	"github.com/xenking/shop-orders/pkg/httpmiddleware"
)

// luaSlidingWindow keeps one sorted-set member per request scored by its
// timestamp in milliseconds. It returns the request count including this one,
// or -1 when the limit is reached.
//
// KEYS[1] key; ARGV: now, window start, window ms, member, limit.
const luaSlidingWindow = `
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  return count + 1
end
return -1
`

var slidingWindowScript = rd.NewScript(luaSlidingWindow)

var _ httpmiddleware.Limiter = (*RateLimiter)(nil)

// RateLimiter is a sliding window limiter shared by all API instances.
type RateLimiter struct {
	rdb    rd.UniversalClient
	limit  int
	window time.Duration
}

// NewRateLimiter allows limit requests per window for each key.
func NewRateLimiter(rdb rd.UniversalClient, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, limit: limit, window: window}
}

// Allow implements httpmiddleware.Limiter.
func (l *RateLimiter) Allow(ctx context.Context, key string, now time.Time) (httpmiddleware.Decision, error) {
	nowMs := now.UnixMilli()
	windowMs := l.window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	n, err := slidingWindowScript.Run(ctx, l.rdb, []string{"ratelimit:" + key},
		nowMs, nowMs-windowMs, windowMs, member, l.limit,
	).Int()
	if err != nil {
		return httpmiddleware.Decision{}, errors.Wrap(err, "rate limit script")
	}

	d := httpmiddleware.Decision{Limit: l.limit, ResetAt: now.Add(l.window)}
	if n < 0 {
		return d, nil
	}
	d.Allowed = true
	d.Remaining = max(l.limit-n, 0)
	return d, nil
}
