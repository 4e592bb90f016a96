package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-table-cache/cache"
	"github.com/goliatone/go-table-cache/stores/storetests"
)

type fakeEntry struct {
	value  []byte
	expiry time.Time
}

type setCall struct {
	key string
	ttl time.Duration
}

type fakeClient struct {
	mu    sync.Mutex
	data  map[string]fakeEntry
	sets  []setCall
	err   error
	nowFn func() time.Time
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		data:  map[string]fakeEntry{},
		nowFn: time.Now,
	}
}

func (f *fakeClient) live(key string) (fakeEntry, bool) {
	entry, ok := f.data[key]
	if !ok {
		return fakeEntry{}, false
	}
	if !entry.expiry.IsZero() && !f.nowFn().Before(entry.expiry) {
		delete(f.data, key)
		return fakeEntry{}, false
	}
	return entry, true
}

func (f *fakeClient) Get(ctx context.Context, key string) *goredis.StringCmd {
	if err := ctx.Err(); err != nil {
		return goredis.NewStringResult("", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return goredis.NewStringResult("", f.err)
	}
	entry, ok := f.live(key)
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(string(entry.value), nil)
}

func (f *fakeClient) Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	if err := ctx.Err(); err != nil {
		return goredis.NewStatusResult("", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sets = append(f.sets, setCall{key: key, ttl: expiration})
	if f.err != nil {
		return goredis.NewStatusResult("", f.err)
	}

	raw, _ := value.([]byte)
	entry := fakeEntry{value: append([]byte(nil), raw...)}
	if expiration > 0 {
		entry.expiry = f.nowFn().Add(expiration)
	}
	f.data[key] = entry
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Expire(ctx context.Context, key string, expiration time.Duration) *goredis.BoolCmd {
	if err := ctx.Err(); err != nil {
		return goredis.NewBoolResult(false, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.live(key)
	if !ok {
		return goredis.NewBoolResult(false, nil)
	}
	entry.expiry = f.nowFn().Add(expiration)
	f.data[key] = entry
	return goredis.NewBoolResult(true, nil)
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	if err := ctx.Err(); err != nil {
		return goredis.NewIntResult(0, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			deleted++
		}
	}
	return goredis.NewIntResult(deleted, nil)
}

func TestStoreSuites(t *testing.T) {
	storetests.RunStoreTestSuites(t, func(t *testing.T) cache.Store {
		return New(newFakeClient(), WithStoreName("test-redis"))
	})
}

func TestStoreName(t *testing.T) {
	assert.Equal(t, "redis", New(newFakeClient()).Name())
	assert.Equal(t, "test-redis", New(newFakeClient(), WithStoreName("test-redis")).Name())
}

func TestSet_SendsTTLWithValue(t *testing.T) {
	client := newFakeClient()
	s := New(client)

	require.NoError(t, s.Set(context.Background(), "orders:u1:o1", []byte("{}"), 90*time.Second))
	require.NoError(t, s.Set(context.Background(), "orders:u1:o2", []byte("{}"), 0))

	require.Len(t, client.sets, 2)
	assert.Equal(t, setCall{key: "orders:u1:o1", ttl: 90 * time.Second}, client.sets[0])
	assert.Equal(t, setCall{key: "orders:u1:o2", ttl: 0}, client.sets[1])
}

func TestSet_NegativeTTLNeverReachesClient(t *testing.T) {
	client := newFakeClient()
	s := New(client)

	err := s.Set(context.Background(), "k", []byte("v"), -time.Second)
	assert.ErrorIs(t, err, cache.ErrInvalidTTL)
	assert.Empty(t, client.sets)
}

func TestGet_ClientErrorIsNotNotFound(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("connection refused")
	s := New(client)

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, cache.ErrNotFound))
}

func TestExpire_NonPositiveDeletes(t *testing.T) {
	client := newFakeClient()
	s := New(client)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Expire(ctx, "k", 0))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
