package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/proctorquiz/internal/ratelimit"
)

func TestLimiter_Allow(t *testing.T) {
	t.Run("requests within the limit are allowed", func(t *testing.T) {
		l, _ := makeLimiter(t, ratelimit.Config{Limit: 4, Window: time.Minute})

		for i := 0; i < 4; i++ {
			ok, err := l.Allow(context.Background(), "user-1")
			require.NoError(t, err)
			assert.True(t, ok, "request %d should be allowed", i+1)
		}
	})

	t.Run("the request over the limit is rejected", func(t *testing.T) {
		l, _ := makeLimiter(t, ratelimit.Config{Limit: 4, Window: time.Minute})

		for i := 0; i < 4; i++ {
			_, err := l.Allow(context.Background(), "user-1")
			require.NoError(t, err)
		}

		ok, err := l.Allow(context.Background(), "user-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("keys are counted independently", func(t *testing.T) {
		l, _ := makeLimiter(t, ratelimit.Config{Limit: 1, Window: time.Minute})

		ok, err := l.Allow(context.Background(), "user-1")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.Allow(context.Background(), "user-2")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("the window resets after it expires", func(t *testing.T) {
		l, rs := makeLimiter(t, ratelimit.Config{Limit: 1, Window: time.Minute})

		ok, err := l.Allow(context.Background(), "user-1")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.Allow(context.Background(), "user-1")
		require.NoError(t, err)
		require.False(t, ok)

		rs.FastForward(time.Minute + time.Second)

		ok, err = l.Allow(context.Background(), "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("a disabled limiter always allows", func(t *testing.T) {
		l := ratelimit.New(ratelimit.Config{})
		require.True(t, l.Disabled())

		for i := 0; i < 100; i++ {
			ok, err := l.Allow(context.Background(), "user-1")
			require.NoError(t, err)
			require.True(t, ok)
		}
	})
}

func makeLimiter(t *testing.T, c ratelimit.Config) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()

	rs := miniredis.RunT(t)
	c.Redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	c.Prefix = "test"

	return ratelimit.New(c), rs
}
