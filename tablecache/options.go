package tablecache

import (
	"context"
	"time"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/table"
)

// callConfig holds the two halves of a call's options. Only params reaches
// the backing table.
type callConfig struct {
	cache  cache.Options
	params table.Params
}

// Option customizes a single decorator call.
type Option func(*callConfig)

// CacheGets controls whether records read from the table are cached.
func CacheGets(enable bool) Option {
	return func(c *callConfig) {
		c.cache.CacheGets = cache.Bool(enable)
	}
}

// CacheSkip bypasses the cache store for reads.
func CacheSkip(enable bool) Option {
	return func(c *callConfig) {
		c.cache.CacheSkip = cache.Bool(enable)
	}
}

// ReadCacheOnly never falls through to the table on a miss.
func ReadCacheOnly(enable bool) Option {
	return func(c *callConfig) {
		c.cache.ReadCacheOnly = cache.Bool(enable)
	}
}

// CacheExpire sets the TTL of cache writes. Zero disables expiry.
func CacheExpire(ttl time.Duration) Option {
	return func(c *callConfig) {
		c.cache.CacheExpire = cache.Duration(ttl)
	}
}

func CacheInserts(enable bool) Option {
	return func(c *callConfig) {
		c.cache.CacheInserts = cache.Bool(enable)
	}
}

func UncacheUpdates(enable bool) Option {
	return func(c *callConfig) {
		c.cache.UncacheUpdates = cache.Bool(enable)
	}
}

// WithCacheOptions applies a prepared set of overrides, for example one
// loaded from configuration.
func WithCacheOptions(opts cache.Options) Option {
	return func(c *callConfig) {
		c.cache = opts.Merge(c.cache)
	}
}

// Attributes restricts a read to the named attributes. Projected reads are
// not cached unless CacheGets is set explicitly.
func Attributes(names ...string) Option {
	return func(c *callConfig) {
		c.params.Attributes = append([]string(nil), names...)
	}
}

func ConsistentRead() Option {
	return func(c *callConfig) {
		c.params.ConsistentRead = true
	}
}

// Condition guards a write with a table specific expression.
func Condition(expression string, names map[string]string, values map[string]any) Option {
	return func(c *callConfig) {
		c.params.Condition = &table.Condition{
			Expression: expression,
			Names:      names,
			Values:     values,
		}
	}
}

// Overwrite(false) makes Create fail when the record already exists.
func Overwrite(enable bool) Option {
	return func(c *callConfig) {
		c.params.NoOverwrite = !enable
	}
}

type optionsContextKey struct{}

// WithOptions attaches options to ctx. They apply to every decorator call
// made with the returned context, below the call's own options.
func WithOptions(ctx context.Context, opts ...Option) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(opts) == 0 {
		return ctx
	}

	existing := optionsFromContext(ctx)
	combined := make([]Option, 0, len(existing)+len(opts))
	combined = append(combined, existing...)
	combined = append(combined, opts...)
	return context.WithValue(ctx, optionsContextKey{}, combined)
}

func optionsFromContext(ctx context.Context) []Option {
	if ctx == nil {
		return nil
	}
	opts, _ := ctx.Value(optionsContextKey{}).([]Option)
	return opts
}

// resolve layers context options and then call options over the table
// defaults. It also returns the merged overrides so callers can tell an
// explicit setting from a default.
func (c *CachedTable) resolve(ctx context.Context, opts []Option) (cache.Effective, table.Params, cache.Options) {
	var scoped callConfig
	for _, opt := range optionsFromContext(ctx) {
		opt(&scoped)
	}

	call := callConfig{params: scoped.params}
	for _, opt := range opts {
		opt(&call)
	}

	merged := call.cache.Merge(scoped.cache)
	return merged.Resolve(c.defaults, call.params.Projected()), call.params, merged
}
