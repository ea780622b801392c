package cache

import (
	"context"
	"time"
)

// Store is a key/value cache holding JSON-encoded values with a TTL.
// Get reports false when the key is absent or expired.
type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
