package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter and sets its expiry on the first hit
// of a window, atomically.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
	return 0
end
return 1
`)

// Limiter is a fixed-window request limiter backed by redis.
type Limiter struct {
	client redis.Scripter
	limit  int
	window time.Duration
}

func NewLimiter(client redis.Scripter, limit int, window time.Duration) *Limiter {
	if window < time.Second {
		window = time.Second
	}
	return &Limiter{client: client, limit: limit, window: window}
}

// Allow reports whether one more request under key fits in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.limit <= 0 {
		return true, nil
	}
	res, err := fixedWindowScript.Run(ctx, l.client, []string{"ratelimit:" + key}, l.limit, int(l.window.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return res == 1, nil
}
