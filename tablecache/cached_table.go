package tablecache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/table"
)

// CachedTable decorates a table.Table with a cache-aside read path and
// write invalidation against a cache.Store.
type CachedTable struct {
	base        table.Table
	store       cache.Store
	schema      table.Schema
	keys        cache.KeyDeriver
	codec       cache.Codec
	defaults    cache.Effective
	logger      *slog.Logger
	metrics     *Metrics
	concurrency int
	async       bool
	now         func() time.Time

	pending pendingWrites
}

// pendingWrites counts background cache writes. Unlike a sync.WaitGroup it
// may be waited on while new writes are still being added: a waiter is
// released the first time the count drops to zero.
type pendingWrites struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (p *pendingWrites) add() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.n == 0 {
		p.idle = make(chan struct{})
	}
	p.n++
}

func (p *pendingWrites) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n--
	if p.n == 0 {
		close(p.idle)
	}
}

// wait returns a channel closed once no writes are in flight.
func (p *pendingWrites) wait() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.n == 0 {
		return closedChan
	}
	return p.idle
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// New wraps base with caching in store.
func New(base table.Table, store cache.Store, cfg Config) (*CachedTable, error) {
	if base == nil {
		return nil, &cache.ConfigError{Field: "Table", Message: "must not be nil"}
	}
	if store == nil {
		return nil, &cache.ConfigError{Field: "Store", Message: "must not be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	schema := base.Schema()
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()
	keys := cfg.Keys
	if keys == nil {
		keys = cache.NewKeyDeriver(schema.TableName)
	}

	return &CachedTable{
		base:        base,
		store:       store,
		schema:      schema,
		keys:        keys,
		codec:       cfg.Codec,
		defaults:    cfg.Defaults.Resolve(cache.DefaultEffective(), false),
		logger:      cfg.Logger.With("table", schema.TableName, "store", store.Name()),
		metrics:     cfg.Metrics,
		concurrency: cfg.BatchConcurrency,
		async:       cfg.AsyncWrites,
		now:         cfg.Clock,
	}, nil
}

func (c *CachedTable) Schema() table.Schema {
	return c.schema
}

// Defaults returns the resolved configuration calls start from.
func (c *CachedTable) Defaults() cache.Effective {
	return c.defaults
}

// CacheKey returns the cache store key of a table key.
func (c *CachedTable) CacheKey(key table.Key) string {
	return c.keys.DeriveKey(key.Hash, key.Range)
}

// Wrap builds an Item for a record that has not been read or written
// through the decorator yet.
func (c *CachedTable) Wrap(record table.Record) *Item {
	return c.wrap(record.Clone())
}

// Get reads a record, serving it from the cache store when present. A
// missing record is reported as a nil Item and a nil error.
//
// With CacheSkip the cache store is left alone unless CacheGets(true) is
// passed explicitly, in which case the fetched record is still cached.
func (c *CachedTable) Get(ctx context.Context, key table.Key, opts ...Option) (*Item, error) {
	eff, params, explicit := c.resolve(ctx, opts)

	if eff.CacheSkip {
		rec, err := c.base.Get(ctx, key, params)
		if err != nil || rec == nil {
			return nil, err
		}
		item := c.wrap(rec)
		if explicit.CacheGets != nil && *explicit.CacheGets {
			c.cacheItem(ctx, item, eff.CacheExpire)
		}
		return item, nil
	}

	item, err := c.probe(ctx, c.CacheKey(key))
	if err != nil {
		return nil, err
	}
	if item != nil {
		return item, nil
	}
	if eff.ReadCacheOnly {
		return nil, nil
	}

	rec, err := c.base.Get(ctx, key, params)
	if err != nil || rec == nil {
		return nil, err
	}
	item = c.wrap(rec)
	if eff.CacheGets {
		c.cacheItem(ctx, item, eff.CacheExpire)
	}
	return item, nil
}

type batchSlot struct {
	key      table.Key
	cacheKey string
	item     *Item
}

// GetItems reads many records at once. Cached records are served from the
// cache store and the rest are fetched with a single table BatchGet. The
// result follows the order of keys, without duplicates and without entries
// for records that do not exist. With ReadCacheOnly only the cache hits are
// returned and the table is not consulted.
func (c *CachedTable) GetItems(ctx context.Context, keys []table.Key, opts ...Option) ([]*Item, error) {
	eff, params, _ := c.resolve(ctx, opts)

	if eff.CacheSkip {
		recs, err := c.base.BatchGet(ctx, keys, params)
		if err != nil {
			return nil, err
		}
		items := make([]*Item, 0, len(recs))
		for _, rec := range recs {
			items = append(items, c.wrap(rec))
		}
		return items, nil
	}

	slots := make([]batchSlot, 0, len(keys))
	positions := make(map[string]int, len(keys))
	for _, k := range keys {
		ck := c.CacheKey(k)
		if _, dup := positions[ck]; dup {
			continue
		}
		positions[ck] = len(slots)
		slots = append(slots, batchSlot{key: k, cacheKey: ck})
	}

	g, gctx := errgroup.WithContext(ctx)
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i := range slots {
		g.Go(func() error {
			item, err := c.probe(gctx, slots[i].cacheKey)
			if err != nil {
				return err
			}
			slots[i].item = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var misses []table.Key
	for _, s := range slots {
		if s.item == nil {
			misses = append(misses, s.key)
		}
	}
	if len(misses) == 0 || eff.ReadCacheOnly {
		return compact(slots), nil
	}

	recs, err := c.base.BatchGet(ctx, misses, params)
	if err != nil {
		return nil, err
	}

	var fetched, extras []*Item
	for _, rec := range recs {
		item := c.wrap(rec)
		key, err := c.schema.KeyOf(rec)
		if err != nil {
			extras = append(extras, item)
			continue
		}
		pos, ok := positions[c.CacheKey(key)]
		if !ok || slots[pos].item != nil {
			extras = append(extras, item)
			continue
		}
		slots[pos].item = item
		if eff.CacheGets {
			fetched = append(fetched, item)
		}
	}
	if len(extras) > 0 {
		c.logger.Debug("batch records without a requested key", "count", len(extras))
	}

	c.cacheItems(ctx, fetched, eff.CacheExpire)
	return append(compact(slots), extras...), nil
}

// BatchGetItems is GetItems.
func (c *CachedTable) BatchGetItems(ctx context.Context, keys []table.Key, opts ...Option) ([]*Item, error) {
	return c.GetItems(ctx, keys, opts...)
}

// Create writes a record to the table and, unless CacheInserts is off, to
// the cache store.
func (c *CachedTable) Create(ctx context.Context, record table.Record, opts ...Option) (*Item, error) {
	eff, params, _ := c.resolve(ctx, opts)

	created, err := c.base.Create(ctx, record, params)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = record.Clone()
	}
	item := c.wrap(created)
	if eff.CacheInserts {
		c.cacheItem(ctx, item, eff.CacheExpire)
	}
	return item, nil
}

// CreateMany writes records to the table and caches each of them
// independently. A failed cache write never affects the others.
func (c *CachedTable) CreateMany(ctx context.Context, records []table.Record, opts ...Option) ([]*Item, error) {
	eff, params, _ := c.resolve(ctx, opts)

	created, err := c.base.CreateMany(ctx, records, params)
	if err != nil {
		return nil, err
	}
	items := make([]*Item, 0, len(created))
	for _, rec := range created {
		items = append(items, c.wrap(rec))
	}
	if eff.CacheInserts {
		c.cacheItems(ctx, items, eff.CacheExpire)
	}
	return items, nil
}

// Update writes the record's attributes to the table and removes the cache
// entry of the record's key, taken from the input record.
func (c *CachedTable) Update(ctx context.Context, record table.Record, opts ...Option) (*Item, error) {
	eff, params, _ := c.resolve(ctx, opts)

	updated, err := c.base.Update(ctx, record, params)
	if err != nil {
		return nil, err
	}
	if eff.UncacheUpdates {
		if key, err := c.schema.KeyOf(record); err != nil {
			c.logger.Warn("cannot uncache updated record", "error", err)
		} else {
			_ = c.uncache(ctx, key, "update")
		}
	}
	if updated == nil {
		updated = record.Clone()
	}
	return c.wrap(updated), nil
}

// Destroy removes a record from the table and always removes its cache
// entry, even when the table call fails.
func (c *CachedTable) Destroy(ctx context.Context, key table.Key, opts ...Option) (*Item, error) {
	_, params, _ := c.resolve(ctx, opts)

	old, err := c.base.Destroy(ctx, key, params)
	_ = c.uncache(ctx, key, "destroy")
	if err != nil || old == nil {
		return nil, err
	}
	return c.wrap(old), nil
}

// Uncache removes the cache entry of key without touching the table.
func (c *CachedTable) Uncache(ctx context.Context, key table.Key) error {
	return c.uncache(ctx, key, "uncache")
}

// Query prepares a query over one hash key. Call CacheResults on the result
// to cache the returned page.
func (c *CachedTable) Query(hash any, params table.QueryParams) *CachedExec {
	return c.newExec(c.base.Query(hash, params), len(params.Attributes) > 0)
}

func (c *CachedTable) Scan(params table.ScanParams) *CachedExec {
	return c.newExec(c.base.Scan(params), len(params.Attributes) > 0)
}

func (c *CachedTable) ParallelScan(segments int, params table.ScanParams) *CachedExec {
	return c.newExec(c.base.ParallelScan(segments, params), len(params.Attributes) > 0)
}

// Flush waits until every background cache write issued before the call
// has settled. It is safe to call while other calls keep issuing writes; it
// then returns the first time no write is in flight.
func (c *CachedTable) Flush(ctx context.Context) error {
	select {
	case <-c.pending.wait():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CachedTable) wrap(record table.Record) *Item {
	return &Item{table: c, attrs: record}
}

// probe reads key from the cache store. Store failures count as a miss;
// a payload that does not decode fails the call.
func (c *CachedTable) probe(ctx context.Context, key string) (*Item, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if cache.IsNotFound(err) {
			c.metrics.lookup(c.schema.TableName, lookupMiss)
			c.logger.Debug("cache miss", "key", key)
		} else {
			c.metrics.lookup(c.schema.TableName, lookupError)
			c.logger.Debug("cache read failed", "key", key, "error", err)
		}
		return nil, nil
	}

	rec, err := c.codec.Unmarshal(data)
	if err != nil {
		c.metrics.lookup(c.schema.TableName, lookupError)
		return nil, &cache.PayloadError{Key: key, Err: err}
	}

	c.metrics.lookup(c.schema.TableName, lookupHit)
	c.logger.Debug("cache hit", "key", key)
	item := c.wrap(table.Record(rec))
	item.FromCache = c.now()
	return item, nil
}

// cacheItem stamps item and writes it to the cache store with ttl. The
// returned result settles once the store answered.
func (c *CachedTable) cacheItem(ctx context.Context, item *Item, ttl time.Duration) *cache.Result {
	item.Cached = c.now()

	key, err := c.schema.KeyOf(item.attrs)
	if err != nil {
		return c.failWrite(item, "", err)
	}
	payload, err := c.codec.Marshal(item.attrs)
	if err != nil {
		return c.failWrite(item, c.CacheKey(key), err)
	}

	ck := c.CacheKey(key)
	res := cache.NewResult()
	item.write = res

	write := func(ctx context.Context) {
		err := c.store.Set(ctx, ck, payload, ttl)
		c.metrics.write(c.schema.TableName, err)
		if err != nil {
			c.logger.Warn("cache write failed", "key", ck, "error", err)
		}
		res.Complete(err)
	}

	if !c.async {
		write(ctx)
		return res
	}

	c.pending.add()
	go func() {
		defer c.pending.done()
		write(context.WithoutCancel(ctx))
	}()
	return res
}

func (c *CachedTable) failWrite(item *Item, key string, err error) *cache.Result {
	c.metrics.write(c.schema.TableName, err)
	c.logger.Warn("cache write failed", "key", key, "error", err)
	res := cache.CompletedResult(err)
	item.write = res
	return res
}

func (c *CachedTable) cacheItems(ctx context.Context, items []*Item, ttl time.Duration) []*cache.Result {
	if len(items) == 0 {
		return nil
	}
	results := make([]*cache.Result, len(items))
	if len(items) == 1 {
		results[0] = c.cacheItem(ctx, items[0], ttl)
		return results
	}

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, item := range items {
		g.Go(func() error {
			results[i] = c.cacheItem(ctx, item, ttl)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *CachedTable) uncache(ctx context.Context, key table.Key, op string) error {
	ck := c.CacheKey(key)
	if err := c.store.Delete(ctx, ck); err != nil && !errors.Is(err, cache.ErrNotFound) {
		c.logger.Warn("cache delete failed", "key", ck, "op", op, "error", err)
		return err
	}
	c.metrics.invalidation(c.schema.TableName, op)
	return nil
}

func compact(slots []batchSlot) []*Item {
	out := make([]*Item, 0, len(slots))
	for _, s := range slots {
		if s.item != nil {
			out = append(out, s.item)
		}
	}
	return out
}
