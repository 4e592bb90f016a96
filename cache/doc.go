// Package cache holds the building blocks the table cache decorator is made
// of: cache key derivation, per call option resolution, the cache Store
// contract, payload codecs and the Result future returned by cache writes.
//
// # Keys
//
// Every record identity maps to exactly one cache key:
//
//	cache.DeriveKey("Orders", "u-1", "o-9") // "orders:u-1:o-9"
//	cache.DeriveKey("Users", "Alice", nil)   // "users:alice"
//
// Keys are lowercased, so identities that differ only by case share an
// entry. Numeric values are rendered in their shortest decimal form, which
// means a hash of 42 and one of float64(42) (as decoded from JSON) agree.
// NewKeyDeriver binds the table name and can add a namespace prefix.
//
// # Options
//
// Options carries optional overrides for the six cache flags. Layers are
// combined with Merge and turned into an Effective value with Resolve:
//
//	eff := cache.Options{CacheExpire: cache.Duration(time.Minute)}.
//		Resolve(cache.DefaultEffective(), false)
//
// When a read asks for a projection of attributes and CacheGets was not set
// explicitly, Resolve disables CacheGets so partial records never reach the
// cache.
//
// # Stores
//
// Store is implemented by:
//
//   - NewMemoryStore: in-process, backed by sturdyc
//   - stores/redis: go-redis v9
//   - stores/valkey: valkey-go
//
// Set writes the value and its TTL atomically. A zero TTL never expires.
//
// # Codecs
//
// JSONCodec is the default. MsgpackCodec is more compact and keeps integer
// types through a round trip.
package cache
