package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseNotHeld is returned when releasing or extending a lease owned by someone else
var ErrLeaseNotHeld = errors.New("lease not held")

// Lease is a best-effort cross-process ownership token (SET NX PX)
// Completion Poller가 작업당 하나의 타이머만 돌도록 보장하는 용도
type Lease struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
}

// NewLease creates an unacquired lease for name
func NewLease(client *Client, name string, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    client.key("lease", name),
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryAcquire takes the lease without blocking
// Redis 비활성화 시 항상 성공 (프로세스 내부 타이머 맵이 유일성 담당)
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	if !l.client.Enabled() {
		return true, nil
	}

	ok, err := l.client.Redis().SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// Release drops the lease if this holder still owns it
func (l *Lease) Release(ctx context.Context) error {
	if !l.client.Enabled() {
		return nil
	}

	n, err := releaseScript.Run(ctx, l.client.Redis(), []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLeaseNotHeld
	}
	return nil
}

// Extend pushes the expiry out by the lease TTL
func (l *Lease) Extend(ctx context.Context) error {
	if !l.client.Enabled() {
		return nil
	}

	n, err := extendScript.Run(ctx, l.client.Redis(), []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lease %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLeaseNotHeld
	}
	return nil
}
