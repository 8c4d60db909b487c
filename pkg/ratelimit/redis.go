package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var slidingLogScript = redis.NewScript(`
local key = KEYS[1]
local seq_key = KEYS[2]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now_ms - window_ms)
local count = redis.call("ZCARD", key)

local allowed = 0
if count < limit then
  allowed = 1
  local seq = redis.call("INCR", seq_key)
  redis.call("ZADD", key, now_ms, tostring(now_ms) .. "-" .. tostring(seq))
  count = count + 1
end

redis.call("PEXPIRE", key, window_ms)
redis.call("PEXPIRE", seq_key, window_ms)

local retry_ms = 0
if allowed == 0 then
  local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
  if oldest and oldest[2] then
    retry_ms = tonumber(oldest[2]) + window_ms - now_ms
  end
  if retry_ms < 1 then
    retry_ms = 1
  end
end

local remaining = limit - count
if remaining < 0 then
  remaining = 0
end
return {allowed, retry_ms, remaining}
`)

// RedisLimiter shares counters between instances through a sorted set per key.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisLimiter stores counters under "<prefix>:<key>". A trailing colon
// on prefix is dropped.
func NewRedisLimiter(client redis.UniversalClient, prefix string, opts ...Option) *RedisLimiter {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "rl"
	}
	o := applyOptions(opts)
	return &RedisLimiter{client: client, prefix: prefix, now: o.now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if l.client == nil {
		return Decision{}, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		windowMS = 1000
	}

	storeKey := fmt.Sprintf("%s:%s", l.prefix, key)
	raw, err := slidingLogScript.Run(ctx, l.client,
		[]string{storeKey, storeKey + ":seq"},
		l.now().UnixMilli(), windowMS, limit,
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected redis script response %T", raw)
	}
	allowed, err := parseRedisInt64(values[0])
	if err != nil {
		return Decision{}, err
	}
	retryMS, err := parseRedisInt64(values[1])
	if err != nil {
		return Decision{}, err
	}
	remaining, err := parseRedisInt64(values[2])
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:    allowed == 1,
		Remaining:  int(max(remaining, 0)),
		RetryAfter: time.Duration(retryMS) * time.Millisecond,
	}, nil
}

func parseRedisInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis response overflows int64")
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected redis response type %T", v)
	}
}
