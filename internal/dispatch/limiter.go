package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"alert-dialer/pkg/utils"
)

// Limiter is a concurrency cap shared across dialer processes. Acquire
// returns false when the cap is full; callers back off and retry.
type Limiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RedisLimiter caps simultaneous outbound attempts across the whole
// fleet using an atomic redis counter with a TTL, so a crashed process
// cannot leak slots forever.
type RedisLimiter struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, key string, limit int, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLimiter{rdb: rdb, key: key, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, l.key, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, l.key)
}
