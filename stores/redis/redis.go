package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-table-cache/cache"
)

// Client is the subset of go-redis the store needs. *redis.Client,
// *redis.ClusterClient and *redis.Ring all satisfy it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Option func(*Store)

func WithStoreName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

func New(client Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		name:   "redis",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Store struct {
	client Client
	name   string
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("key %s not found in store %s: %w", key, s.name, cache.ErrNotFound)
		}
		return nil, err
	}
	return val, nil
}

// Set issues a single SET with EX/PX so value and TTL land together.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		return cache.ErrInvalidTTL
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %s not found in store %s: %w", key, s.name, cache.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *Store) Name() string {
	return s.name
}

var _ cache.Store = (*Store)(nil)
var _ Client = (*redis.Client)(nil)
