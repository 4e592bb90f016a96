package cache

import "time"

// Effective is the resolved cache configuration for a single call.
type Effective struct {
	// CacheGets writes records fetched from the backing store into the cache.
	CacheGets bool
	// CacheSkip bypasses the cache entirely for reads.
	CacheSkip bool
	// ReadCacheOnly never falls through to the backing store on a miss.
	ReadCacheOnly bool
	// CacheExpire is the entry TTL. Zero means no expiry.
	CacheExpire time.Duration
	// CacheInserts writes created records into the cache.
	CacheInserts bool
	// UncacheUpdates deletes the cache entry of an updated record.
	UncacheUpdates bool
}

// DefaultEffective returns the built in defaults.
func DefaultEffective() Effective {
	return Effective{
		CacheGets:      true,
		CacheSkip:      false,
		ReadCacheOnly:  false,
		CacheExpire:    0,
		CacheInserts:   true,
		UncacheUpdates: true,
	}
}

// Options holds optional overrides. A nil field defers to the layer below.
type Options struct {
	CacheGets      *bool          `yaml:"cache_gets" json:"cache_gets,omitempty"`
	CacheSkip      *bool          `yaml:"cache_skip" json:"cache_skip,omitempty"`
	ReadCacheOnly  *bool          `yaml:"read_cache_only" json:"read_cache_only,omitempty"`
	CacheExpire    *time.Duration `yaml:"cache_expire" json:"cache_expire,omitempty"`
	CacheInserts   *bool          `yaml:"cache_inserts" json:"cache_inserts,omitempty"`
	UncacheUpdates *bool          `yaml:"uncache_updates" json:"uncache_updates,omitempty"`
}

// Merge layers o on top of base: fields set in o win.
func (o Options) Merge(base Options) Options {
	out := base
	if o.CacheGets != nil {
		out.CacheGets = o.CacheGets
	}
	if o.CacheSkip != nil {
		out.CacheSkip = o.CacheSkip
	}
	if o.ReadCacheOnly != nil {
		out.ReadCacheOnly = o.ReadCacheOnly
	}
	if o.CacheExpire != nil {
		out.CacheExpire = o.CacheExpire
	}
	if o.CacheInserts != nil {
		out.CacheInserts = o.CacheInserts
	}
	if o.UncacheUpdates != nil {
		out.UncacheUpdates = o.UncacheUpdates
	}
	return out
}

// Resolve produces the effective configuration for one call.
//
// When the call reads a projection of attributes and CacheGets was not set
// explicitly, caching of fetched records is turned off: a partial record
// must never be stored under the full record's key.
func (o Options) Resolve(defaults Effective, projected bool) Effective {
	eff := defaults
	if o.CacheGets != nil {
		eff.CacheGets = *o.CacheGets
	} else if projected {
		eff.CacheGets = false
	}
	if o.CacheSkip != nil {
		eff.CacheSkip = *o.CacheSkip
	}
	if o.ReadCacheOnly != nil {
		eff.ReadCacheOnly = *o.ReadCacheOnly
	}
	if o.CacheExpire != nil {
		eff.CacheExpire = *o.CacheExpire
	}
	if o.CacheInserts != nil {
		eff.CacheInserts = *o.CacheInserts
	}
	if o.UncacheUpdates != nil {
		eff.UncacheUpdates = *o.UncacheUpdates
	}
	return eff
}

// Bool returns a pointer to b, for filling Options literals.
func Bool(b bool) *bool {
	return &b
}

// Duration returns a pointer to d, for filling Options literals.
func Duration(d time.Duration) *time.Duration {
	return &d
}
