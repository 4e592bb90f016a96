package tablecache

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/table"
)

type stubTable struct {
	table.Table
}

func (stubTable) Schema() table.Schema {
	return table.Schema{TableName: "Orders", HashKey: "userId", RangeKey: "orderId"}
}

type stubStore struct {
	cache.Store
}

func (stubStore) Name() string { return "stub" }

func newResolver(t *testing.T, defaults cache.Options) *CachedTable {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Defaults = defaults
	c, err := New(stubTable{}, stubStore{}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestResolve_Defaults(t *testing.T) {
	c := newResolver(t, cache.Options{})

	eff, params, _ := c.resolve(context.Background(), nil)
	if eff != cache.DefaultEffective() {
		t.Errorf("expected built in defaults, got %+v", eff)
	}
	if params.Projected() || params.NoOverwrite || params.Condition != nil {
		t.Errorf("expected empty params, got %+v", params)
	}
}

func TestResolve_ConfigDefaults(t *testing.T) {
	c := newResolver(t, cache.Options{
		CacheInserts: cache.Bool(false),
		CacheExpire:  cache.Duration(time.Hour),
	})

	eff, _, _ := c.resolve(context.Background(), nil)
	if eff.CacheInserts {
		t.Error("expected CacheInserts off from config defaults")
	}
	if eff.CacheExpire != time.Hour {
		t.Errorf("expected 1h expiry, got %v", eff.CacheExpire)
	}
}

func TestResolve_Precedence(t *testing.T) {
	c := newResolver(t, cache.Options{CacheExpire: cache.Duration(time.Hour)})
	ctx := WithOptions(context.Background(), CacheExpire(time.Minute), CacheGets(false))

	eff, _, _ := c.resolve(ctx, nil)
	if eff.CacheExpire != time.Minute || eff.CacheGets {
		t.Errorf("expected context to override defaults, got %+v", eff)
	}

	eff, _, explicit := c.resolve(ctx, []Option{CacheExpire(time.Second)})
	if eff.CacheExpire != time.Second {
		t.Errorf("expected call to override context, got %v", eff.CacheExpire)
	}
	if explicit.CacheGets == nil || *explicit.CacheGets {
		t.Errorf("expected explicit CacheGets=false from context, got %v", explicit.CacheGets)
	}
}

func TestResolve_ProjectionDisablesCacheGets(t *testing.T) {
	c := newResolver(t, cache.Options{})

	eff, params, _ := c.resolve(context.Background(), []Option{Attributes("status")})
	if eff.CacheGets {
		t.Error("expected projected read to disable CacheGets")
	}
	if len(params.Attributes) != 1 || params.Attributes[0] != "status" {
		t.Errorf("expected attributes forwarded, got %v", params.Attributes)
	}

	eff, _, _ = c.resolve(context.Background(), []Option{Attributes("status"), CacheGets(true)})
	if !eff.CacheGets {
		t.Error("expected explicit CacheGets to win over projection")
	}
}

func TestResolve_ParamsSplit(t *testing.T) {
	c := newResolver(t, cache.Options{})
	ctx := WithOptions(context.Background(), ConsistentRead())

	eff, params, _ := c.resolve(ctx, []Option{
		CacheSkip(true),
		Overwrite(false),
		Condition("#s = :s", map[string]string{"#s": "status"}, map[string]any{":s": "open"}),
	})
	if !eff.CacheSkip {
		t.Error("expected CacheSkip")
	}
	if !params.ConsistentRead {
		t.Error("expected ConsistentRead from context")
	}
	if !params.NoOverwrite {
		t.Error("expected NoOverwrite")
	}
	if params.Condition == nil || params.Condition.Names["#s"] != "status" {
		t.Errorf("expected condition forwarded, got %+v", params.Condition)
	}
}

func TestWithCacheOptions(t *testing.T) {
	c := newResolver(t, cache.Options{})

	eff, _, _ := c.resolve(context.Background(), []Option{
		CacheExpire(time.Minute),
		WithCacheOptions(cache.Options{ReadCacheOnly: cache.Bool(true)}),
	})
	if !eff.ReadCacheOnly || eff.CacheExpire != time.Minute {
		t.Errorf("expected merged overrides, got %+v", eff)
	}
}

func TestWithOptions_NoOptions(t *testing.T) {
	ctx := context.Background()
	if WithOptions(ctx) != ctx {
		t.Error("expected the same context when no options are given")
	}
}
