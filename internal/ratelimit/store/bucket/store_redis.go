package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bizreg/internal/ratelimit/models"
)

// slidingWindowScript trims the window, then admits the request when room is
// left. It returns {allowed, remaining, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	count = count + 1
	allowed = 1
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then
	first = tonumber(oldest[2])
end
return {allowed, limit - count, first}
`)

// RedisBucketStore keeps one sorted set per key so replicas share budgets.
type RedisBucketStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisBucketStore creates a Redis-backed bucket store.
func NewRedisBucketStore(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client, now: time.Now}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.now()
	raw, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", raw)
	}

	resetAt := time.UnixMilli(raw[2]).Add(window)
	res := &models.RateLimitResult{
		Allowed:   raw[0] == 1,
		Limit:     limit,
		Remaining: max(int(raw[1]), 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = retryAfter(now, resetAt)
	}
	return res, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}

// GetCurrentCount returns the entries recorded at the last Allow; the set
// expires with its window.
func (s *RedisBucketStore) GetCurrentCount(ctx context.Context, key string) (int, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count rate limit: %w", err)
	}
	return int(n), nil
}
