package tablecache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/pkg/testsupport"
	"github.com/goliatone/go-table-cache/table"
	"github.com/goliatone/go-table-cache/tablecache"
)

func orderIDs(items []*tablecache.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Get("orderId").(string))
	}
	return out
}

func seededOrders() []table.Record {
	return []table.Record{
		order("u1", "o1", "open"),
		order("u1", "o2", "open"),
		order("u1", "o3", "open"),
		order("u1", "o4", "open"),
	}
}

func TestGetItems_PreservesOrderWithPartialHits(t *testing.T) {
	base := testsupport.NewMemTable(testsupport.OrdersSchema, seededOrders()...)
	base.ReverseBatch = true
	store := testsupport.NewMemStore()
	c := newCached(t, base, store)
	ctx := context.Background()

	_, err := c.Get(ctx, table.CompositeKey("u1", "o2"))
	require.NoError(t, err)
	base.ClearCalls()

	items, err := c.GetItems(ctx, []table.Key{
		table.CompositeKey("u1", "o3"),
		table.CompositeKey("u1", "o1"),
		table.CompositeKey("u1", "o2"),
		table.CompositeKey("u1", "o1"),
		table.CompositeKey("u1", "missing"),
		table.CompositeKey("u1", "o4"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"o3", "o1", "o2", "o4"}, orderIDs(items))
	assert.True(t, items[2].IsFromCache())
	assert.False(t, items[0].IsFromCache())

	require.Equal(t, []string{"BatchGet"}, base.Calls())
	assert.Equal(t, [][]table.Key{{
		table.CompositeKey("u1", "o3"),
		table.CompositeKey("u1", "o1"),
		table.CompositeKey("u1", "missing"),
		table.CompositeKey("u1", "o4"),
	}}, base.BatchKeys())

	assert.Equal(t, []string{"orders:u1:o1", "orders:u1:o2", "orders:u1:o3", "orders:u1:o4"}, store.Keys())
}

func TestGetItems_AllHits(t *testing.T) {
	base := testsupport.NewMemTable(testsupport.OrdersSchema, seededOrders()...)
	store := testsupport.NewMemStore()
	c := newCached(t, base, store)
	ctx := context.Background()

	keys := []table.Key{table.CompositeKey("u1", "o2"), table.CompositeKey("u1", "o1")}
	_, err := c.GetItems(ctx, keys)
	require.NoError(t, err)
	base.ClearCalls()

	items, err := c.GetItems(ctx, keys)
	require.NoError(t, err)
	assert.Equal(t, []string{"o2", "o1"}, orderIDs(items))
	assert.Empty(t, base.Calls())
}

func TestGetItems_BoundedConcurrency(t *testing.T) {
	base := testsupport.NewMemTable(testsupport.OrdersSchema, seededOrders()...)
	base.ReverseBatch = true
	store := testsupport.NewMemStore()
	c := newCached(t, base, store, func(cfg *tablecache.Config) {
		cfg.BatchConcurrency = 1
	})

	items, err := c.BatchGetItems(context.Background(), []table.Key{
		table.CompositeKey("u1", "o4"),
		table.CompositeKey("u1", "o2"),
		table.CompositeKey("u1", "o1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"o4", "o2", "o1"}, orderIDs(items))
}

func TestGetItems_CacheSkip(t *testing.T) {
	base := testsupport.NewMemTable(testsupport.OrdersSchema, seededOrders()...)
	base.ReverseBatch = true
	store := testsupport.NewMemStore()
	c := newCached(t, base, store)

	items, err := c.GetItems(context.Background(), []table.Key{
		table.CompositeKey("u1", "o1"),
		table.CompositeKey("u1", "o2"),
	}, tablecache.CacheSkip(true))
	require.NoError(t, err)

	assert.Equal(t, []string{"o2", "o1"}, orderIDs(items))
	assert.Empty(t, store.Calls())
}

func TestGetItems_ReadCacheOnly(t *testing.T) {
	base := testsupport.NewMemTable(testsupport.OrdersSchema, seededOrders()...)
	store := testsupport.NewMemStore()
	c := newCached(t, base, store)
	ctx := context.Background()

	_, err := c.Get(ctx, table.CompositeKey("u1", "o3"))
	require.NoError(t, err)
	base.ClearCalls()

	items, err := c.GetItems(ctx, []table.Key{
		table.CompositeKey("u1", "o1"),
		table.CompositeKey("u1", "o3"),
	}, tablecache.ReadCacheOnly(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"o3"}, orderIDs(items))
	assert.Empty(t, base.Calls())
}

func TestGetItems_ProjectionNotCached(t *testing.T) {
	base := testsupport.NewMemTable(testsupport.OrdersSchema, seededOrders()...)
	store := testsupport.NewMemStore()
	c := newCached(t, base, store)

	items, err := c.GetItems(context.Background(), []table.Key{
		table.CompositeKey("u1", "o1"),
	}, tablecache.Attributes("userId", "orderId"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0, store.CallCount("Set"))
}

func TestGetItems_CorruptPayload(t *testing.T) {
	base := testsupport.NewMemTable(testsupport.OrdersSchema, seededOrders()...)
	store := testsupport.NewMemStore()
	store.Put("orders:u1:o2", []byte("{"))
	c := newCached(t, base, store)

	_, err := c.GetItems(context.Background(), []table.Key{
		table.CompositeKey("u1", "o1"),
		table.CompositeKey("u1", "o2"),
	})
	assert.ErrorIs(t, err, cache.ErrCorruptPayload)
	assert.Equal(t, 0, base.CallCount("BatchGet"))
}

func TestGetItems_Empty(t *testing.T) {
	base := testsupport.NewMemTable(testsupport.OrdersSchema)
	c := newCached(t, base, testsupport.NewMemStore())

	items, err := c.GetItems(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, base.Calls())
}
