// Package ratelimit provides Redis-backed request limiting shared across processes.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "rateLimit:"

// Result describes the outcome of a limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// fixedWindowScript reads the counter and its TTL, rejects when the window is
// full, and otherwise increments. The expiry is set only when the window opens.
var fixedWindowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

if current >= max then
	if ttl < 0 then
		ttl = window
	end
	return {0, 0, ttl}
end

current = redis.call('INCR', KEYS[1])
if current == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], window)
	ttl = window
end

return {1, max - current, ttl}
`)

var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)

local count = redis.call('ZCARD', KEYS[1])
if count >= max then
	local reset = window
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	if oldest[2] then
		reset = tonumber(oldest[2]) + window - now
	end
	return {0, 0, reset}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)

return {1, max - count - 1, window}
`)

// Limiter checks fixed and sliding window limits. Store failures fail open.
type Limiter struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewLimiter(client redis.UniversalClient, logger *slog.Logger) *Limiter {
	return &Limiter{
		client: client,
		logger: logger.With("module", "rate_limiter"),
	}
}

// CheckRateLimit counts one hit against a fixed window of the given length.
func (l *Limiter) CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) Result {
	values, err := fixedWindowScript.Run(ctx, l.client, []string{keyPrefix + key}, max, window.Milliseconds()).Int64Slice()
	if err != nil {
		return l.failOpen(ctx, key, max, err)
	}

	return toResult(values)
}

// CheckSlidingWindow counts one hit against a sliding window of the given length.
func (l *Limiter) CheckSlidingWindow(ctx context.Context, key string, max int, window time.Duration) Result {
	now := time.Now().UnixMilli()
	member := fmt.Sprintf("%d-%s", now, uuid.NewString())

	values, err := slidingWindowScript.Run(ctx, l.client, []string{keyPrefix + "sliding:" + key}, now, window.Milliseconds(), max, member).Int64Slice()
	if err != nil {
		return l.failOpen(ctx, key, max, err)
	}

	return toResult(values)
}

func (l *Limiter) failOpen(ctx context.Context, key string, max int, err error) Result {
	l.logger.WarnContext(ctx, "Rate limit check failed, allowing request", "key", key, "error", err)

	return Result{Allowed: true, Remaining: max}
}

func toResult(values []int64) Result {
	if len(values) != 3 {
		return Result{Allowed: true}
	}

	return Result{
		Allowed:   values[0] == 1,
		Remaining: int(values[1]),
		ResetIn:   time.Duration(values[2]) * time.Millisecond,
	}
}
