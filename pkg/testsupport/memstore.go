package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-table-cache/cache"
)

// MemStore is a cache.Store backed by a map. It keeps the TTL of every write
// so tests can assert on it and never expires entries on its own.
type MemStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	ttls  map[string]time.Duration
	calls []string
	fails map[string]error
	hook  func(op, key string)
}

var _ cache.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		data:  map[string][]byte{},
		ttls:  map[string]time.Duration{},
		fails: map[string]error{},
	}
}

// Fail makes every later call to op return err. A nil err clears it.
func (s *MemStore) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fails, op)
		return
	}
	s.fails[op] = err
}

// OnCall registers a hook run before each operation, outside the lock.
func (s *MemStore) OnCall(fn func(op, key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

func (s *MemStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *MemStore) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (s *MemStore) ClearCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Has reports whether key holds a value.
func (s *MemStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

// Raw returns the stored payload for key.
func (s *MemStore) Raw(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key]
}

// Put stores a payload directly, bypassing call recording.
func (s *MemStore) Put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// TTL returns the TTL of the last write to key.
func (s *MemStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

func (s *MemStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *MemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.enter("Get", key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.enter("Set", key); err != nil {
		return err
	}
	if ttl < 0 {
		return cache.ErrInvalidTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	s.ttls[key] = ttl
	return nil
}

func (s *MemStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.enter("Expire", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return cache.ErrNotFound
	}
	if ttl <= 0 {
		delete(s.data, key)
		delete(s.ttls, key)
		return nil
	}
	s.ttls[key] = ttl
	return nil
}

func (s *MemStore) Delete(ctx context.Context, key string) error {
	if err := s.enter("Delete", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.ttls, key)
	return nil
}

func (s *MemStore) Name() string {
	return "mem"
}

func (s *MemStore) enter(op, key string) error {
	s.mu.Lock()
	s.calls = append(s.calls, op)
	err := s.fails[op]
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(op, key)
	}
	return err
}
