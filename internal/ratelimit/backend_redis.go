package ratelimit

import (
	"context"
	"fmt"
	"time"

	"promo-service/internal/client"
)

const quotaKeyPrefix = "rate_limit:"

// Single round trip per take. The hash carries both count and reset so
// window rollover needs no separate read-then-write; rejects never
// increment. PEXPIRE garbage-collects idle keys at window end.
const takeScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'count', 'reset_ms')
local count = tonumber(bucket[1])
local reset_ms = tonumber(bucket[2])

if count == nil or reset_ms == nil or now_ms >= reset_ms then
    count = 0
    reset_ms = now_ms + window_ms
end

local allowed = 0
if count < limit then
    count = count + 1
    allowed = 1
end

redis.call('HMSET', key, 'count', count, 'reset_ms', reset_ms)
redis.call('PEXPIRE', key, reset_ms - now_ms)
return {allowed, count, reset_ms}
`

// RedisBackend counts quota in Redis so all processes share one window
// per key. Each take is a single atomic script evaluation.
type RedisBackend struct {
	client *client.RedisClient
}

func NewRedisBackend(client *client.RedisClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Take(ctx context.Context, key string, limit int64, windowDur time.Duration) (Slot, error) {
	nowMs := time.Now().UnixMilli()

	result, err := b.client.Eval(ctx, takeScript,
		[]string{quotaKeyPrefix + key},
		limit, windowDur.Milliseconds(), nowMs)
	if err != nil {
		return Slot{}, fmt.Errorf("failed to take quota slot: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return Slot{}, fmt.Errorf("unexpected result format from quota script")
	}

	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)
	resetMs, _ := values[2].(int64)

	return Slot{
		Allowed: allowed == 1,
		Count:   count,
		ResetAt: time.UnixMilli(resetMs),
	}, nil
}
