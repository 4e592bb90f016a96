// Package tablecache puts a cache store in front of a record table.
//
// A CachedTable wraps a table.Table and a cache.Store. Reads consult the
// cache first and fill it on a miss. Creates write the new record to the
// cache, updates and destroys remove the record's entry:
//
//	orders, err := tablecache.New(dynamoTable, redisStore, tablecache.DefaultConfig())
//	item, err := orders.Get(ctx, table.CompositeKey("u-1", "o-9"))
//
// Every call accepts options. Cache options such as CacheExpire or CacheSkip
// steer the decorator and are never forwarded to the table. Params options
// such as Attributes or ConsistentRead are forwarded unchanged. Options
// attached to a context with WithOptions apply below the call's own options.
//
// Cache store failures never fail a call: reads fall back to the table and
// failed writes are logged and reported through the item's CacheWrite
// result. A payload that cannot be decoded is an error, see
// cache.ErrCorruptPayload.
package tablecache
