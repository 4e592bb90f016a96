package di

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/pkg/testsupport"
	"github.com/goliatone/go-table-cache/table"
	"github.com/goliatone/go-table-cache/tablecache"
)

func benchTable(b *testing.B, n int) (*testsupport.MemTable, *tablecache.CachedTable) {
	b.Helper()
	container, err := NewContainer(testConfig())
	if err != nil {
		b.Fatalf("Failed to create DI container: %v", err)
	}
	base := testsupport.NewMemTable(testsupport.OrdersSchema)
	for i := 0; i < n; i++ {
		base.Create(context.Background(), table.Record{"userId": "u1", "orderId": fmt.Sprintf("o%d", i), "total": i}, table.Params{})
	}
	cached, err := container.CachedTable(base)
	if err != nil {
		b.Fatalf("Failed to create cached table: %v", err)
	}
	return base, cached
}

func BenchmarkCachedVsBaseTable(b *testing.B) {
	ctx := context.Background()
	base, cached := benchTable(b, 100)

	b.Run("Base", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = base.Get(ctx, table.CompositeKey("u1", fmt.Sprintf("o%d", i%100)), table.Params{})
		}
	})

	b.Run("Cached", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = cached.Get(ctx, table.CompositeKey("u1", fmt.Sprintf("o%d", i%100)))
		}
	})

	b.Run("CachedBatch", func(b *testing.B) {
		keys := make([]table.Key, 25)
		for i := range keys {
			keys[i] = table.CompositeKey("u1", fmt.Sprintf("o%d", i*4))
		}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = cached.GetItems(ctx, keys)
		}
	})
}

func BenchmarkDeriveKey(b *testing.B) {
	deriver := cache.NewKeyDeriver("Orders")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = deriver.DeriveKey("user-123", i)
	}
}

func BenchmarkConcurrentCachedGet(b *testing.B) {
	ctx := context.Background()
	_, cached := benchTable(b, 100)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = cached.Get(ctx, table.CompositeKey("u1", fmt.Sprintf("o%d", i%100)))
			i++
		}
	})
}
