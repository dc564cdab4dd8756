package ipc

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Datahenge/btu-scheduler-daemon/internal/metrics"
)

// tokenBucketScript is a token-bucket rate limiter, adapted from the
// teacher's queue client's Allow() helper: one Redis hash per throttled
// key holding "tokens" and "last_refill", refilled atomically on each
// call so concurrent connections never race on the read-modify-write.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local tokens = tonumber(redis.call('HGET', key, 'tokens'))
	local last_refill = tonumber(redis.call('HGET', key, 'last_refill'))

	if not tokens then
		tokens = burst
		last_refill = now
	end

	local delta = math.max(0, now - last_refill)
	local new_tokens = math.min(burst, tokens + (delta * rate))

	if new_tokens >= requested then
		new_tokens = new_tokens - requested
		redis.call('HSET', key, 'tokens', new_tokens, 'last_refill', now)
		return 1
	else
		redis.call('HSET', key, 'tokens', new_tokens, 'last_refill', now)
		return 0
	end
`)

// defaultRate and defaultBurst throttle Control Plane requests per
// request_type. The UDS protocol has no authentication of its own, so a
// misbehaving or compromised local client is bounded to a sane request
// rate rather than being able to flood the FIFO or Due-Time Index.
const (
	defaultRate  = 50
	defaultBurst = 100
)

type rateLimiter struct {
	rdb *redis.Client
}

func newRateLimiter(rdb *redis.Client) *rateLimiter {
	return &rateLimiter{rdb: rdb}
}

// Allow reports whether a request of the given type may proceed, consuming
// one token from its bucket. If rdb is nil (tests without Redis wired),
// Allow always permits the request.
func (r *rateLimiter) Allow(ctx context.Context, requestType string) (bool, error) {
	if r.rdb == nil {
		return true, nil
	}
	key := fmt.Sprintf("btu_scheduler:ipc_ratelimit:%s", requestType)
	result, err := tokenBucketScript.Run(ctx, r.rdb,
		[]string{key},
		defaultRate,
		defaultBurst,
		time.Now().Unix(),
		1,
	).Result()
	if err != nil {
		metrics.RedisErrorsTotal.WithLabelValues("ipc_ratelimit").Inc()
		return false, err
	}
	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("ipc: unexpected rate limiter result type %T", result)
	}
	return allowed == 1, nil
}
