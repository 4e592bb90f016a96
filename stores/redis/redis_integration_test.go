//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/pkg/testsupport"
	redisstore "github.com/goliatone/go-table-cache/stores/redis"
	"github.com/goliatone/go-table-cache/stores/storetests"
)

func newClient(t *testing.T, addr string) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:            addr,
		Protocol:        2,
		DisableIdentity: true,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStore(t *testing.T) {
	storetests.RunStoreTestSuites(t, func(t *testing.T) cache.Store {
		srv := testsupport.StartRESPServer(t)
		return redisstore.New(newClient(t, srv.Addr()))
	}, storetests.WithShortTTL(time.Second))
}

func TestRedisStore_SetSendsTTL(t *testing.T) {
	srv := testsupport.StartRESPServer(t)
	store := redisstore.New(newClient(t, srv.Addr()))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "users:1", []byte("v"), time.Minute))

	ttl := srv.TTL("users:1")
	assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 1)

	_, err := store.Get(ctx, "users:missing")
	assert.True(t, cache.IsNotFound(err))
}
