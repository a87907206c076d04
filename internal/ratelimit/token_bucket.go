package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"athena-query-scheduler/internal/config"
)

// TokenBucket is a Redis-backed token bucket shared by every process that submits
// to the same workgroup.
type TokenBucket struct {
	client    *redis.Client
	namespace string
	capacity  int
	refill    float64 // tokens per second
	ttl       time.Duration
}

// NewTokenBucket constructs a bucket with the provided capacity/refill. Keys passed to
// Allow are prefixed with namespace.
func NewTokenBucket(client *redis.Client, namespace string, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	return &TokenBucket{
		client:    client,
		namespace: namespace,
		capacity:  capacity,
		refill:    refillPerSecond,
		ttl:       ttl,
	}
}

// FromConfig returns nil when no Redis address is configured.
func FromConfig(cfg config.Config, namespace string) *TokenBucket {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewTokenBucket(client, namespace, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
}

// Allow consumes a single token for the given key if available.
// Returns allowed flag and the tokens left after the call.
func (b *TokenBucket) Allow(ctx context.Context, key string) (bool, float64, error) {
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, b.client, []string{b.key(key)}, b.capacity, b.refill, now, b.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("token bucket %s: %w", key, err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, fmt.Errorf("token bucket %s: unexpected script result %T", key, res)
	}
	allowed, _ := arr[0].(int64)
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	}
	return allowed == 1, tokens, nil
}

// Close releases the Redis connection pool.
func (b *TokenBucket) Close() error {
	return b.client.Close()
}

func (b *TokenBucket) key(k string) string {
	if b.namespace == "" {
		return k
	}
	return b.namespace + ":" + k
}

// Lua numbers returned to Redis are truncated to integers, so tokens comes back floored.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
tokens = math.min(capacity, tokens + delta / 1000 * refill)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)
