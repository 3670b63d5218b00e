package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/alphalens/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	cfg := &config.Config{Redis: config.RedisConfig{Enabled: false}}

	client, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(Disabled(), "test")
	ctx := context.Background()

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "key", "value", TTLShort))
	assert.NoError(t, cache.Delete(ctx, "key"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")
	cfg := NaverRateLimit(7)

	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 7, remaining)
	assert.NoError(t, limiter.Wait(context.Background(), cfg))
}

func TestNaverRateLimit(t *testing.T) {
	assert.Equal(t, RateLimitConfig{Key: "naver", Limit: 10, Window: time.Second}, NaverRateLimit(0))
	assert.Equal(t, 3, NaverRateLimit(3).Limit)
}

func TestNewLocker_RequiresRedis(t *testing.T) {
	_, err := NewLocker(Disabled(), "test")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"quote", QuoteKey("005930"), "quote:005930"},
		{"bars", BarsKey("005930"), "bars:005930"},
		{"news", NewsKey("005930"), "news:005930"},
		{"fundamentals", FundamentalsKey("005930"), "fundamentals:005930"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}
