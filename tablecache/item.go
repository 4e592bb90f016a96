package tablecache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/table"
)

// ErrDetached is returned by Item methods that need a table when the item
// was not produced by a CachedTable.
var ErrDetached = errors.New("item is not bound to a cached table")

// Item is a record read or written through a CachedTable.
//
// Cached and FromCache are bookkeeping of this instance only. They are
// never encoded into the cache payload nor sent to the table.
type Item struct {
	// Cached is when the record was last written to the cache store.
	Cached time.Time
	// FromCache is when the record was decoded from the cache store. It is
	// zero for records read from the table.
	FromCache time.Time

	attrs table.Record
	table *CachedTable
	write *cache.Result
}

// Attrs returns a copy of the record's attributes.
func (i *Item) Attrs() table.Record {
	return i.attrs.Clone()
}

func (i *Item) Get(name string) any {
	return i.attrs[name]
}

func (i *Item) Set(name string, value any) {
	if i.attrs == nil {
		i.attrs = table.Record{}
	}
	i.attrs[name] = value
}

// Key returns the record's table key.
func (i *Item) Key() (table.Key, error) {
	if i.table == nil {
		return table.Key{}, ErrDetached
	}
	return i.table.schema.KeyOf(i.attrs)
}

// IsFromCache reports whether the record was served by the cache store.
func (i *Item) IsFromCache() bool {
	return !i.FromCache.IsZero()
}

// CacheWrite returns the pending or settled result of the last cache write
// of this item, or nil when it was never cached.
func (i *Item) CacheWrite() *cache.Result {
	return i.write
}

// Save creates the record in the table.
func (i *Item) Save(ctx context.Context, opts ...Option) error {
	if i.table == nil {
		return ErrDetached
	}
	created, err := i.table.Create(ctx, i.attrs, opts...)
	if err != nil {
		return err
	}
	i.refresh(created)
	return nil
}

// Update writes the item's current attributes to the table.
func (i *Item) Update(ctx context.Context, opts ...Option) error {
	if i.table == nil {
		return ErrDetached
	}
	updated, err := i.table.Update(ctx, i.attrs, opts...)
	if err != nil {
		return err
	}
	i.refresh(updated)
	return nil
}

func (i *Item) Destroy(ctx context.Context, opts ...Option) error {
	key, err := i.Key()
	if err != nil {
		return err
	}
	_, err = i.table.Destroy(ctx, key, opts...)
	return err
}

// Uncache removes the item's cache entry.
func (i *Item) Uncache(ctx context.Context) error {
	key, err := i.Key()
	if err != nil {
		return err
	}
	return i.table.Uncache(ctx, key)
}

// Touch resets the TTL of the item's cache entry. A ttl of zero or less
// removes the entry.
func (i *Item) Touch(ctx context.Context, ttl time.Duration) error {
	key, err := i.Key()
	if err != nil {
		return err
	}
	return i.table.store.Expire(ctx, i.table.CacheKey(key), ttl)
}

// MarshalJSON encodes the record's attributes.
func (i *Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(i.attrs))
}

func (i *Item) refresh(from *Item) {
	i.attrs = from.attrs
	i.Cached = from.Cached
	i.write = from.write
}
