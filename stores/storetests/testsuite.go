// Package storetests holds the behaviour suite every cache.Store must pass.
package storetests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-table-cache/cache"
)

// Config tunes the suite for stores with coarse TTL resolution.
type Config struct {
	// ShortTTL is the TTL used by expiry tests.
	ShortTTL time.Duration
	// Sleep waits past ShortTTL. Stores with an injected clock advance it.
	Sleep func(time.Duration)
}

type Option func(*Config)

func WithShortTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.ShortTTL = ttl
	}
}

func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Config) {
		c.Sleep = sleep
	}
}

func NewConfig() *Config {
	return &Config{
		ShortTTL: 50 * time.Millisecond,
		Sleep:    time.Sleep,
	}
}

// RunStoreTestSuites exercises the cache.Store contract against stores built
// by newStore. Each subtest gets a fresh store.
func RunStoreTestSuites(t *testing.T, newStore func(*testing.T) cache.Store, opts ...Option) {
	config := NewConfig()
	for _, opt := range opts {
		opt(config)
	}

	t.Run("Get", func(t *testing.T) {
		t.Run("ExistingKey", func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Set(ctx, "users:1", []byte("value1"), time.Minute))

			val, err := s.Get(ctx, "users:1")
			assert.NoError(t, err)
			assert.Equal(t, []byte("value1"), val)
		})

		t.Run("NonExistingKey", func(t *testing.T) {
			s := newStore(t)

			val, err := s.Get(context.Background(), "users:missing")
			assert.Nil(t, val)
			assert.True(t, errors.Is(err, cache.ErrNotFound))
		})

		t.Run("ExpiredKey", func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Set(ctx, "users:expiring", []byte("value"), config.ShortTTL))
			config.Sleep(2 * config.ShortTTL)

			val, err := s.Get(ctx, "users:expiring")
			assert.Nil(t, val)
			assert.True(t, errors.Is(err, cache.ErrNotFound))
		})

		t.Run("BinaryPayload", func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			payload := []byte{0x00, 0xff, 0x81, '\r', '\n'}

			require.NoError(t, s.Set(ctx, "bin", payload, 0))

			val, err := s.Get(ctx, "bin")
			require.NoError(t, err)
			assert.Equal(t, payload, val)
		})
	})

	t.Run("Set", func(t *testing.T) {
		t.Run("OverwriteExistingKey", func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Set(ctx, "overwrite", []byte("old"), time.Minute))
			require.NoError(t, s.Set(ctx, "overwrite", []byte("new"), time.Minute))

			val, err := s.Get(ctx, "overwrite")
			assert.NoError(t, err)
			assert.Equal(t, []byte("new"), val)
		})

		t.Run("ZeroTTLNeverExpires", func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))
			config.Sleep(2 * config.ShortTTL)

			val, err := s.Get(ctx, "forever")
			assert.NoError(t, err)
			assert.Equal(t, []byte("v"), val)
		})

		t.Run("NegativeTTL", func(t *testing.T) {
			s := newStore(t)

			err := s.Set(context.Background(), "negative", []byte("v"), -time.Second)
			assert.True(t, errors.Is(err, cache.ErrInvalidTTL))
		})
	})

	t.Run("Expire", func(t *testing.T) {
		t.Run("MissingKey", func(t *testing.T) {
			s := newStore(t)

			err := s.Expire(context.Background(), "expire:missing", time.Minute)
			assert.True(t, errors.Is(err, cache.ErrNotFound))
		})

		t.Run("ShortensLifetime", func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Set(ctx, "expire:k", []byte("v"), 0))
			require.NoError(t, s.Expire(ctx, "expire:k", config.ShortTTL))
			config.Sleep(2 * config.ShortTTL)

			_, err := s.Get(ctx, "expire:k")
			assert.True(t, errors.Is(err, cache.ErrNotFound))
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("ExistingKey", func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Set(ctx, "delete:k", []byte("v"), time.Minute))
			require.NoError(t, s.Delete(ctx, "delete:k"))

			_, err := s.Get(ctx, "delete:k")
			assert.True(t, errors.Is(err, cache.ErrNotFound))
		})

		t.Run("MissingKeyIsNotAnError", func(t *testing.T) {
			s := newStore(t)
			assert.NoError(t, s.Delete(context.Background(), "delete:missing"))
		})
	})

	t.Run("Name", func(t *testing.T) {
		s := newStore(t)
		assert.NotEmpty(t, s.Name())
	})
}
