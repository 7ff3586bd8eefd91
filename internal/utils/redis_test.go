package utils

import (
	"context"
	"os"
	"testing"
	"time"

	"contactrelay/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRateLimitKey(t *testing.T) {
	assert.Equal(t, "rate_limit:ip:203.0.113.9:contact", GetRateLimitKey("ip:203.0.113.9", "contact"))
}

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions(config.RedisConfig{Addr: "cache:6379", DB: 2, Username: "u", Password: "p"})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
}

func TestIncrementRateLimit(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client, err := NewRedisClient(config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	key := GetRateLimitKey("test", time.Now().Format(time.RFC3339Nano))
	defer client.ClearRateLimit(ctx, key)

	for i := 1; i <= 3; i++ {
		count, ttl, err := client.IncrementRateLimit(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.True(t, ttl > 0 && ttl <= time.Minute)
	}
}
