package cache_test

import (
	"errors"
	"testing"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/stores/storetests"
)

func TestMemoryStore(t *testing.T) {
	storetests.RunStoreTestSuites(t, func(t *testing.T) cache.Store {
		store, err := cache.NewMemoryStore(cache.DefaultConfig())
		if err != nil {
			t.Fatalf("failed to create memory store: %v", err)
		}
		return store
	})
}

func TestNewMemoryStore_InvalidConfig(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.Capacity = 0

	store, err := cache.NewMemoryStore(cfg)
	if err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if store != nil {
		t.Errorf("expected nil store, got %T", store)
	}

	var cfgErr *cache.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *cache.ConfigError, got %T", err)
	}
	if cfgErr.Field != "Capacity" {
		t.Errorf("expected Capacity field error, got %s", cfgErr.Field)
	}
}
