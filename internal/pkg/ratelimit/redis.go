package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR and arm the expiry atomically.
var incrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter shares counters between instances. A window starts with the
// first request and ends when the key expires.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, maxRequests int, win time.Duration) (bool, error) {
	count, err := incrScript.Run(ctx, l.client, []string{l.prefix + key}, win.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return count <= int64(maxRequests), nil
}

func (l *RedisLimiter) Remaining(ctx context.Context, key string, maxRequests int, _ time.Duration) (int, error) {
	count, err := l.client.Get(ctx, l.prefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return maxRequests, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis rate limit remaining: %w", err)
	}
	return max(0, maxRequests-count), nil
}

func (l *RedisLimiter) ResetSeconds(ctx context.Context, key string, _ time.Duration) (int64, error) {
	ttl, err := l.client.PTTL(ctx, l.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis rate limit ttl: %w", err)
	}
	if ttl <= 0 {
		return 0, nil
	}
	return int64(ttl / time.Second), nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset: %w", err)
	}
	return nil
}
