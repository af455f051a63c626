package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements sliding window rate limiting shared across processes
// ⭐ SSOT: 외부 API 레이트 리밋은 여기서만
type RateLimiter struct {
	client *Client
}

// RateLimitConfig defines rate limit parameters
type RateLimitConfig struct {
	Key    string // collaborator 이름 (dart, naver, naver-search)
	Limit  int
	Window time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, window_ms)
		return {1, limit - count - 1}
	end
	return {0, 0}
`)

// Allow reports whether one more request fits the window
// Returns (allowed, remaining, error)
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (bool, int, error) {
	if !r.client.Enabled() {
		return true, cfg.Limit, nil
	}

	now := time.Now()
	result, err := slidingWindow.Run(ctx, r.client.Redis(),
		[]string{r.client.key("ratelimit", cfg.Key)},
		now.UnixMilli(),
		now.Add(-cfg.Window).UnixMilli(),
		cfg.Limit,
		cfg.Window.Milliseconds(),
		now.UnixNano(),
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}

	allowed := result[0].(int64) == 1
	remaining := int(result[1].(int64))
	return allowed, remaining, nil
}

// Wait blocks until a request is allowed or context is cancelled
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	for {
		allowed, _, err := r.Allow(ctx, cfg)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

var (
	// DART API: 분당 100회 (보수적)
	DARTRateLimit = RateLimitConfig{Key: "dart", Limit: 100, Window: time.Minute}

	// Naver 시세: 초당 10회
	NaverRateLimit = RateLimitConfig{Key: "naver", Limit: 10, Window: time.Second}

	// Naver 뉴스 검색: 초당 3회
	NaverSearchRateLimit = RateLimitConfig{Key: "naver-search", Limit: 3, Window: time.Second}
)
