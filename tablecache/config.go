package tablecache

import (
	"log/slog"
	"time"

	"github.com/goliatone/go-table-cache/cache"
)

// Config configures a CachedTable.
type Config struct {
	// Defaults override cache.DefaultEffective for every call.
	Defaults cache.Options
	// BatchConcurrency bounds concurrent cache probes and writes of a batch.
	// Zero means unbounded.
	BatchConcurrency int
	// AsyncWrites runs cache writes in the background. Flush waits for them.
	AsyncWrites bool
	Codec       cache.Codec
	// Keys derives cache keys. Defaults to the table name deriver.
	Keys    cache.KeyDeriver
	Logger  *slog.Logger
	Metrics *Metrics
	Clock   func() time.Time
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Codec:  cache.JSONCodec{},
		Logger: slog.Default(),
		Clock:  time.Now,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if c.BatchConcurrency < 0 {
		return &cache.ConfigError{Field: "BatchConcurrency", Message: "must be non-negative"}
	}
	if c.Defaults.CacheExpire != nil && *c.Defaults.CacheExpire < 0 {
		return &cache.ConfigError{Field: "Defaults.CacheExpire", Message: "must be non-negative"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Codec == nil {
		c.Codec = def.Codec
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	return c
}
