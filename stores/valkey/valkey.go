package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/goliatone/go-table-cache/cache"
)

type Option func(*Store)

func WithName(name string) Option {
	return func(store *Store) {
		store.name = name
	}
}

// WithClientSideCache serves Get through valkey client side caching, keeping
// local copies for at most ttl. Invalidation relies on server assisted
// tracking, so only enable it against servers that support RESP3.
func WithClientSideCache(ttl time.Duration) Option {
	return func(store *Store) {
		store.clientSideCacheTTL = ttl
	}
}

func New(client valkey.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		name:   "valkey",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Store struct {
	name               string
	client             valkey.Client
	clientSideCacheTTL time.Duration
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var resp valkey.ValkeyResult
	if s.clientSideCacheTTL > 0 {
		resp = s.client.DoCache(ctx, s.client.B().Get().Key(key).Cache(), s.clientSideCacheTTL)
	} else {
		resp = s.client.Do(ctx, s.client.B().Get().Key(key).Build())
	}

	val, err := resp.AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, fmt.Errorf("key %s not found in store %s: %w", key, s.name, cache.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set writes the value, and the TTL when one is given, inside one
// MULTI/EXEC transaction.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		return cache.ErrInvalidTTL
	}

	set := s.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Build()
	if ttl == 0 {
		return s.client.Do(ctx, set).Error()
	}

	cmds := []valkey.Completed{
		s.client.B().Multi().Build(),
		set,
		s.client.B().Expire().Key(key).Seconds(ttlSeconds(ttl)).Build(),
		s.client.B().Exec().Build(),
	}
	resps := s.client.DoMulti(ctx, cmds...)
	for i, resp := range resps[:len(resps)-1] {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("valkey set %s: command %d: %w", key, i, err)
		}
	}

	// Errors of queued commands are elements of the EXEC reply.
	replies, err := resps[len(resps)-1].ToArray()
	if err != nil {
		return fmt.Errorf("valkey set %s: exec: %w", key, err)
	}
	for i := range replies {
		if err := replies[i].Error(); err != nil {
			return fmt.Errorf("valkey set %s: queued command %d: %w", key, i, err)
		}
	}
	return nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	n, err := s.client.Do(ctx, s.client.B().Expire().Key(key).Seconds(ttlSeconds(ttl)).Build()).AsInt64()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("key %s not found in store %s: %w", key, s.name, cache.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error()
}

func (s *Store) Name() string {
	return s.name
}

// ttlSeconds rounds up so sub second TTLs still expire rather than persist.
func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return secs
}

var _ cache.Store = (*Store)(nil)
