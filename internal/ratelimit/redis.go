package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set scored by request time in milliseconds.
// The request is only added when the window still has room.
const slidingWindowLuaScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count >= limit then
    return 0
end

redis.call("ZADD", key, now, member)
redis.call("PEXPIRE", key, window)
return 1
`

// RedisLimiter shares the sliding window between processes.
type RedisLimiter struct {
	client      redis.UniversalClient
	script      *redis.Script
	prefix      string
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedis creates a Redis-backed limiter. Keys are written as
// "<prefix>:ratelimit:<key>".
func NewRedis(client redis.UniversalClient, prefix string, maxRequests int, window time.Duration) *RedisLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if prefix == "" {
		prefix = "messenger"
	}
	return &RedisLimiter{
		client:      client,
		script:      redis.NewScript(slidingWindowLuaScript),
		prefix:      prefix + ":ratelimit:",
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().UnixMilli()
	member := strconv.FormatInt(now, 10) + ":" + uuid.NewString()

	res, err := l.script.Run(ctx, l.client, []string{l.prefix + key},
		now, l.window.Milliseconds(), l.maxRequests, member).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit redis: allow %q: %w", key, err)
	}
	return res == 1, nil
}

// ResetIn implements Limiter.
func (l *RedisLimiter) ResetIn(ctx context.Context, key string) (time.Duration, error) {
	oldest, err := l.client.ZRangeWithScores(ctx, l.prefix+key, 0, 0).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("ratelimit redis: reset %q: %w", key, err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}
	resetAt := time.UnixMilli(int64(oldest[0].Score)).Add(l.window)
	if d := resetAt.Sub(l.now()); d > 0 {
		return d, nil
	}
	return 0, nil
}
