package cacheinfra

import (
	"context"
	"errors"
	"time"

	"github.com/viccon/sturdyc"
)

var (
	// ErrNotFound is returned when a key is absent or logically expired.
	ErrNotFound = errors.New("cache key not found")

	// ErrInvalidTTL is returned for negative TTLs.
	ErrInvalidTTL = errors.New("invalid cache ttl")
)

// Config holds the configuration for the sturdyc backed store.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the longest an entry stays resident, whatever TTL it was
	// written with. Entries written without a TTL live this long.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                time.Hour,
		EvictionPercentage: 10,
	}
}

func (c Config) sturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// entry is what the store keeps per key. A zero expiresAt never expires.
type entry struct {
	payload   []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// StoreOption configures a SturdycStore.
type StoreOption func(*SturdycStore)

// WithClock replaces the time source used for logical expiry.
func WithClock(now func() time.Time) StoreOption {
	return func(s *SturdycStore) {
		if now != nil {
			s.now = now
		}
	}
}

// SturdycStore is an in-process cache store. sturdyc owns capacity and
// eviction; per key TTLs are enforced on read.
type SturdycStore struct {
	client *sturdyc.Client[entry]
	now    func() time.Time
}

// NewSturdycStore validates cfg and builds the store.
func NewSturdycStore(cfg Config, opts ...StoreOption) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.sturdycOptions()...,
	)

	s := &SturdycStore{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SturdycStore) Name() string { return "memory" }

func (s *SturdycStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e, ok := s.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.payload...), nil
}

func (s *SturdycStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl < 0 {
		return ErrInvalidTTL
	}

	e := entry{payload: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.client.Set(key, e)
	return nil
}

// Expire resets the TTL of an existing entry. A non positive TTL removes it.
func (s *SturdycStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e, ok := s.lookup(key)
	if !ok {
		return ErrNotFound
	}
	if ttl <= 0 {
		s.client.Delete(key)
		return nil
	}
	e.expiresAt = s.now().Add(ttl)
	s.client.Set(key, e)
	return nil
}

func (s *SturdycStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.client.Delete(key)
	return nil
}

// Len returns the number of resident entries, expired ones included.
func (s *SturdycStore) Len() int {
	return s.client.Size()
}

func (s *SturdycStore) lookup(key string) (entry, bool) {
	e, ok := s.client.Get(key)
	if !ok {
		return entry{}, false
	}
	if e.expired(s.now()) {
		s.client.Delete(key)
		return entry{}, false
	}
	return e, true
}
