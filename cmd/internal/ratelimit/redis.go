package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps one counter per key that expires Window after the
// first failure.
type RedisLimiter struct {
	redis  redis.UniversalClient
	cfg    Config
	prefix string
}

// NewRedisLimiter returns a limiter using keys "<prefix>:login:<key>".
func NewRedisLimiter(client redis.UniversalClient, cfg Config, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "tasker"
	}
	return &RedisLimiter{redis: client, cfg: cfg, prefix: prefix}
}

func (l *RedisLimiter) key(k string) string {
	return l.prefix + ":login:" + k
}

func (l *RedisLimiter) Check(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.redis == nil || l.cfg.MaxFailures <= 0 {
		return false, 0, nil
	}
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count < int64(l.cfg.MaxFailures) {
		return false, 0, nil
	}

	ttl, err := l.redis.TTL(ctx, l.key(key)).Result()
	if err != nil {
		return true, l.cfg.Window, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl < 0 {
		ttl = l.cfg.Window
	}
	return true, ttl, nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, key string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	count, err := l.redis.Incr(ctx, l.key(key)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(key), l.cfg.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
