package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowScript counts hits in the current window and starts the window
// expiry on the first hit. Returns the hit count.
var windowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RedisLimiter is a fixed-window limiter shared by every node talking to the
// same Redis. A window admits burst requests and lasts burst/rps seconds, so
// the long-run rate matches MemoryLimiter.
type RedisLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	limit     int64
	window    time.Duration
}

// NewRedisLimiter creates a RedisLimiter over client
func NewRedisLimiter(client redis.UniversalClient, keyPrefix string, rps float64, burst int) *RedisLimiter {
	if burst < 1 {
		burst = 1
	}
	window := time.Second
	if rps > 0 {
		window = time.Duration(math.Ceil(float64(burst) / rps * float64(time.Second)))
	}
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     int64(burst),
		window:    window,
	}
}

// NewRedisClient parses a redis:// URL
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Allow implements Limiter
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := windowScript.Run(ctx, l.client, []string{l.keyPrefix + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	return count <= l.limit, nil
}
