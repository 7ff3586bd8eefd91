package utils

import (
	"context"
	"fmt"
	"time"

	"contactrelay/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis client with additional functionality
type RedisClient struct {
	*redis.Client
}

// NewRedisClient creates a new Redis client and pings it.
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(RedisOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{Client: client}, nil
}

// RedisOptions holds the pool and timeout settings shared by every Redis user.
func RedisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		Username: cfg.Username,
		DB:       cfg.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	}
}

// HealthCheck checks if Redis is healthy
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	return r.Ping(ctx).Err()
}

// GetRateLimitKey returns a Redis key for rate limiting
func GetRateLimitKey(clientID, endpointKey string) string {
	return fmt.Sprintf("rate_limit:%s:%s", clientID, endpointKey)
}

// IncrementRateLimit counts one hit in a fixed window. The expiry is only set
// by the first hit, so the window does not slide with every request. It
// returns the count so far and the time left in the window.
func (r *RedisClient) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	pipe := r.TxPipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttlCmd := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = window
	}
	return int(incrCmd.Val()), ttl, nil
}

// ClearRateLimit clears a rate limit key
func (r *RedisClient) ClearRateLimit(ctx context.Context, key string) error {
	return r.Del(ctx, key).Err()
}
