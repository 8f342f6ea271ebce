package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "ratelimit:"

// hitScript increments the window counter, starting the window on the first
// hit, and returns the count with the remaining window in milliseconds.
var hitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// refundScript only decrements a live positive counter, so a refund racing
// an expiry cannot leave a key without a TTL behind.
var refundScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]))
if current and current > 0 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

// RedisLimiter is a fixed-window counter shared by every instance.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Backend() string { return "redis" }

func (l *RedisLimiter) Allow(ctx context.Context, tier Tier, key string) (Decision, error) {
	values, err := hitScript.Run(ctx, l.client, []string{redisKeyPrefix + key}, tier.Window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit hit %s: %w", key, err)
	}
	if len(values) != 2 {
		return Decision{}, fmt.Errorf("rate limit hit %s: unexpected reply %v", key, values)
	}

	count, ok1 := values[0].(int64)
	ttl, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return Decision{}, fmt.Errorf("rate limit hit %s: unexpected reply %v", key, values)
	}

	return Decision{
		Allowed:    count <= int64(tier.Max),
		Limit:      tier.Max,
		Remaining:  max(tier.Max-int(count), 0),
		RetryAfter: time.Duration(ttl) * time.Millisecond,
	}, nil
}

func (l *RedisLimiter) Refund(ctx context.Context, tier Tier, key string) error {
	if !tier.SkipSuccessful {
		return nil
	}
	if err := refundScript.Run(ctx, l.client, []string{redisKeyPrefix + key}).Err(); err != nil {
		return fmt.Errorf("rate limit refund %s: %w", key, err)
	}
	return nil
}
