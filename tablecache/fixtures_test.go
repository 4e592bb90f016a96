package tablecache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-table-cache/pkg/testsupport"
	"github.com/goliatone/go-table-cache/table"
)

func TestGetItems_GoldenOutput(t *testing.T) {
	recs := testsupport.LoadRecords(t, testsupport.FixturePath("orders.json"))
	c, base, _ := newOrders(t, recs...)
	ctx := context.Background()

	_, err := c.Get(ctx, table.CompositeKey("u1", "o1"))
	require.NoError(t, err)

	items, err := c.GetItems(ctx, []table.Key{
		table.CompositeKey("u2", "o3"),
		table.CompositeKey("u1", "o1"),
		table.CompositeKey("u1", "missing"),
		table.CompositeKey("u1", "o2"),
	})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.True(t, items[1].IsFromCache())
	assert.Equal(t, 1, base.CallCount("BatchGet"))

	testsupport.CompareGoldenJSON(t, testsupport.GoldenPath("batch_items.json"), items)
}

func TestGet_FixtureNullAttribute(t *testing.T) {
	recs := testsupport.LoadRecords(t, testsupport.FixturePath("orders.json"))
	c, _, _ := newOrders(t, recs...)
	ctx := context.Background()

	_, err := c.Get(ctx, table.CompositeKey("u2", "o4"))
	require.NoError(t, err)

	cached, err := c.Get(ctx, table.CompositeKey("u2", "o4"))
	require.NoError(t, err)
	require.True(t, cached.IsFromCache())
	attrs := cached.Attrs()
	assert.Contains(t, attrs, "note")
	assert.Nil(t, attrs["note"])
	assert.Equal(t, float64(0), attrs["total"])
}
