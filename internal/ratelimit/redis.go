package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/bizq-orchestrator/internal/clock"
)

// slidingWindowScript prunes, counts, and conditionally records in one round trip so concurrent
// replicas observe a consistent window.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', key)
if count >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// Redis is a sliding-window limiter backed by one sorted set per client, for deployments where
// several replicas must share a window.
type Redis struct {
	rdb    redis.Scripter
	prefix string
	limit  int
	window time.Duration
	clock  clock.Clock
}

// RedisOption customizes a Redis limiter.
type RedisOption func(*Redis)

// WithKeyPrefix overrides the key prefix (default "bizq:ratelimit").
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = strings.Trim(prefix, ":") }
}

// WithClock overrides the clock used to timestamp requests.
func WithClock(clk clock.Clock) RedisOption {
	return func(r *Redis) { r.clock = clk }
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(rdb redis.Scripter, cfg Config, opts ...RedisOption) *Redis {
	cfg = cfg.withDefaults()
	r := &Redis{
		rdb:    rdb,
		prefix: "bizq:ratelimit",
		limit:  cfg.Limit,
		window: cfg.Window,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow reports whether clientID may make another request.
func (r *Redis) Allow(ctx context.Context, clientID string) (bool, error) {
	if clientID == "" {
		return false, ErrEmptyClientID
	}
	now := r.clock.Now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())
	res, err := slidingWindowScript.Run(
		ctx,
		r.rdb,
		[]string{r.prefix + ":" + clientID},
		now,
		r.window.Milliseconds(),
		r.limit,
		member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis sliding window: %w", err)
	}
	return res == 1, nil
}
