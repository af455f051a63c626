package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/smsh73/AAA/pkg/config"
)

// Client wraps the Redis client with additional utilities
// ⭐ SSOT: Redis 연결은 여기서만 관리
// Redis 비활성화 시 모든 헬퍼는 no-op (단일 프로세스 모드)
type Client struct {
	rdb     *redis.Client
	enabled bool
	prefix  string
}

// New creates a new Redis client
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{enabled: false, prefix: cfg.Redis.Prefix}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{rdb: rdb, enabled: true, prefix: cfg.Redis.Prefix}, nil
}

// Wrap adopts an existing go-redis client (tests, shared pools)
func Wrap(rdb *redis.Client, prefix string) *Client {
	return &Client{rdb: rdb, enabled: rdb != nil, prefix: prefix}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled returns whether Redis is enabled
func (c *Client) Enabled() bool {
	return c.enabled
}

// Redis returns the underlying redis client for advanced usage
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// key namespaces every key under the configured prefix
func (c *Client) key(kind, name string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, kind, name)
}
