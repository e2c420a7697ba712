package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultLimit  = 4
	defaultWindow = time.Minute
)

type Config struct {
	// Redis may be nil, which yields a limiter in disabled mode: every
	// request is allowed and no connection is ever attempted. Disabled is
	// an explicit state, not an error path.
	Redis  redis.UniversalClient
	Prefix string
	// Limit is the number of requests allowed per Window. Zero values
	// fall back to 4 per minute.
	Limit  int
	Window time.Duration
}

// Limiter is a fixed-window request limiter over Redis INCR/EXPIRE.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func New(c Config) *Limiter {
	if c.Limit <= 0 {
		c.Limit = defaultLimit
	}
	if c.Window <= 0 {
		c.Window = defaultWindow
	}

	return &Limiter{
		redis:  c.Redis,
		prefix: c.Prefix,
		limit:  c.Limit,
		window: c.Window,
	}
}

// Disabled reports whether the limiter was built without a Redis backend.
func (l *Limiter) Disabled() bool {
	return l.redis == nil
}

// Allow counts one request against the key's window and reports whether it
// is within the limit. A disabled limiter always allows.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.Disabled() {
		return true, nil
	}

	k := fmt.Sprintf("%s:ratelimit:%s", l.prefix, key)

	n, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incr: %w", err)
	}

	if n == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("expire: %w", err)
		}
	}

	return n <= int64(l.limit), nil
}
