// Package ratelimit is the abuse-protection collaborator consulted before
// transaction creation. The Redis implementation uses a fixed window of
// INCR + EXPIRE per user key.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a request may proceed. A denial must surface
// before any side effects are performed.
type Limiter interface {
	// Allow reports whether the request identified by key is within limits.
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed-window limiter backed by Redis.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRedisLimiter connects to Redis at addr and allows limit requests per
// key per window.
func NewRedisLimiter(ctx context.Context, addr string, limit int64, window time.Duration) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(fmt.Sprintf("redis://%s", addr))
	if err != nil {
		// Fallback to simple connection
		opt = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("NewRedisLimiter: connect to redis: %w", err)
	}

	return &RedisLimiter{client: client, limit: limit, window: window}, nil
}

// Allow implements Limiter. The first hit in a window sets the expiry; the
// count resets when the window lapses.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}

	return count <= l.limit, nil
}

// Close releases the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// Unlimited is the no-op limiter used when Redis is not configured.
type Unlimited struct{}

// Allow always permits the request.
func (Unlimited) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}

var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = Unlimited{}
)
