package cache

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-table-cache/internal/cacheinfra"
)

var (
	// ErrNotFound is returned by a Store when a key is absent or expired.
	ErrNotFound = cacheinfra.ErrNotFound

	// ErrInvalidTTL is returned by a Store for negative TTLs.
	ErrInvalidTTL = cacheinfra.ErrInvalidTTL

	// ErrCorruptPayload is returned when a cached value cannot be decoded.
	ErrCorruptPayload = errors.New("corrupt cache payload")
)

// ConfigError reports an invalid configuration field.
type ConfigError = cacheinfra.ConfigError

// PayloadError wraps a decode failure with the cache key it was read from.
type PayloadError struct {
	Key string
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("cache key %q: %v: %v", e.Key, ErrCorruptPayload, e.Err)
}

func (e *PayloadError) Is(target error) bool {
	return target == ErrCorruptPayload
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
