package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-table-cache/table"
)

var ordersSchema = table.Schema{TableName: "orders", HashKey: "userId", RangeKey: "orderId"}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", "file::memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_, _ = db.NewDropTable().TableExpr("?", bun.Ident(ordersSchema.TableName)).IfExists().Exec(context.Background())
		_ = db.Close()
	})

	store, err := New(db, ordersSchema)
	require.NoError(t, err)
	require.NoError(t, store.CreateTable(context.Background()))
	return store
}

func order(user, id string, total float64) table.Record {
	return table.Record{"userId": user, "orderId": id, "total": total}
}

func TestNew_InvalidSchema(t *testing.T) {
	_, err := New(nil, table.Schema{TableName: "x"})
	var schemaErr *table.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestStore_CreateGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, order("u1", "o1", 10), table.Params{})
	require.NoError(t, err)
	assert.Equal(t, "u1", created["userId"])

	got, err := store.Get(ctx, table.CompositeKey("u1", "o1"), table.Params{})
	require.NoError(t, err)
	assert.Equal(t, order("u1", "o1", 10), got)

	missing, err := store.Get(ctx, table.CompositeKey("u1", "nope"), table.Params{})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_GetProjection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, order("u1", "o1", 10), table.Params{})
	require.NoError(t, err)

	got, err := store.Get(ctx, table.CompositeKey("u1", "o1"), table.Params{Attributes: []string{"total"}})
	require.NoError(t, err)
	assert.Equal(t, table.Record{"total": float64(10)}, got)
}

func TestStore_CreateNoOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, order("u1", "o1", 10), table.Params{})
	require.NoError(t, err)

	_, err = store.Create(ctx, order("u1", "o1", 99), table.Params{NoOverwrite: true})
	assert.True(t, table.IsConditionFailed(err))

	_, err = store.Create(ctx, order("u1", "o1", 20), table.Params{})
	require.NoError(t, err)

	got, err := store.Get(ctx, table.CompositeKey("u1", "o1"), table.Params{})
	require.NoError(t, err)
	assert.Equal(t, float64(20), got["total"])
}

func TestStore_CreateMissingKey(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create(context.Background(), table.Record{"userId": "u1"}, table.Params{})
	assert.True(t, errors.Is(err, table.ErrMissingKey))
}

func TestStore_Update(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, table.Record{"userId": "u1", "orderId": "o1", "total": 10.0, "note": "x"}, table.Params{})
	require.NoError(t, err)

	updated, err := store.Update(ctx, table.Record{"userId": "u1", "orderId": "o1", "total": 15.0, "note": nil}, table.Params{})
	require.NoError(t, err)
	assert.Equal(t, table.Record{"userId": "u1", "orderId": "o1", "total": 15.0}, updated)

	got, err := store.Get(ctx, table.CompositeKey("u1", "o1"), table.Params{})
	require.NoError(t, err)
	assert.Equal(t, float64(15), got["total"])
	assert.NotContains(t, got, "note")
}

func TestStore_Destroy(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, order("u1", "o1", 10), table.Params{})
	require.NoError(t, err)

	old, err := store.Destroy(ctx, table.CompositeKey("u1", "o1"), table.Params{})
	require.NoError(t, err)
	assert.Equal(t, "o1", old["orderId"])

	again, err := store.Destroy(ctx, table.CompositeKey("u1", "o1"), table.Params{})
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestStore_CreateManyAndBatchGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateMany(ctx, []table.Record{order("u1", "o1", 1), order("u1", "o2", 2), order("u2", "o1", 3)}, table.Params{})
	require.NoError(t, err)

	got, err := store.BatchGet(ctx, []table.Key{
		table.CompositeKey("u2", "o1"),
		table.CompositeKey("u9", "o9"),
		table.CompositeKey("u1", "o2"),
	}, table.Params{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "u2", got[0]["userId"])
	assert.Equal(t, "o2", got[1]["orderId"])
}

func TestStore_QueryPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateMany(ctx, []table.Record{
		order("u1", "o1", 1), order("u1", "o2", 2), order("u1", "o3", 3), order("u2", "o1", 4),
	}, table.Params{})
	require.NoError(t, err)

	exec := store.Query("u1", table.QueryParams{Limit: 2})
	first, err := exec.Exec(ctx)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "o1", first.Items[0]["orderId"])
	assert.Equal(t, table.Record{"userId": "u1", "orderId": "o2"}, first.LastEvaluatedKey)

	second, err := exec.WithStartKey(first.LastEvaluatedKey).Exec(ctx)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "o3", second.Items[0]["orderId"])
	assert.Nil(t, second.LastEvaluatedKey)
}

func TestStore_QueryWhereCriteria(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateMany(ctx, []table.Record{order("u1", "o1", 1), order("u1", "o2", 2)}, table.Params{})
	require.NoError(t, err)

	page, err := store.QueryWhere("u1", table.QueryParams{}, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("range_key = ?", "o2")
	}).Exec(ctx)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "o2", page.Items[0]["orderId"])
}

func TestStore_Scan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateMany(ctx, []table.Record{order("u2", "o1", 1), order("u1", "o1", 2)}, table.Params{})
	require.NoError(t, err)

	page, err := store.ParallelScan(4, table.ScanParams{}).Exec(ctx)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "u1", page.Items[0]["userId"])
	assert.Equal(t, 2, page.Count)
}

func TestStore_UnsupportedParams(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Query("u1", table.QueryParams{IndexName: "byTotal"}).Exec(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = store.Update(ctx, order("u1", "o1", 1), table.Params{Condition: &table.Condition{Expression: "x"}})
	assert.ErrorIs(t, err, ErrUnsupported)
}
