package cache

import (
	"context"
	"time"
)

// Store is the key/value contract the table cache writes records into.
//
// Get returns ErrNotFound when the key is absent or expired. Set writes the
// value and applies the TTL as one atomic operation; a zero TTL means the
// entry never expires and a negative TTL is rejected with ErrInvalidTTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Name() string
}
