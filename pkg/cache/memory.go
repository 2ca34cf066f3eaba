package cache

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
	access   time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return now.After(m.expireAt)
}

// MemoryStore implements Store in process. Values are JSON-encoded so Get
// behaves the same as the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
	now     func() time.Time
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	cfg := &MemoryConfig{MaxSize: 1000}
	for _, opt := range opts {
		opt(cfg)
	}
	return &MemoryStore{
		data:    make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		now:     time.Now,
	}
}

func (m *MemoryStore) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	now := m.now()
	if expiration <= 0 {
		expiration = 7 * 24 * time.Hour
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; !exists && len(m.data) >= m.maxSize {
		m.evictLRU()
	}
	m.data[key] = &memoryItem{data: data, expireAt: now.Add(expiration), access: now}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string, dest interface{}) error {
	now := m.now()
	m.mu.Lock()
	item, ok := m.data[key]
	if ok && item.expired(now) {
		delete(m.data, key)
		ok = false
	}
	if ok {
		item.access = now
	}
	m.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return decode(item.data, dest)
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

// DeleteByPattern accepts the same glob syntax as Redis KEYS for the common
// cases (*, ?, character classes).
func (m *MemoryStore) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.data, key)
		}
	}
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, keys ...string) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		if item, ok := m.data[key]; ok && !item.expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.data[key]; ok && !item.expired(now) {
		return false, nil
	}
	m.data[key] = &memoryItem{data: []byte(`"locked"`), expireAt: now.Add(ttl), access: now}
	return true, nil
}

func (m *MemoryStore) Unlock(ctx context.Context, key string) error {
	return m.Delete(ctx, key)
}

func (m *MemoryStore) Close() error { return nil }

// evictLRU must be called with mu held.
func (m *MemoryStore) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, item := range m.data {
		if oldestKey == "" || item.access.Before(oldest) {
			oldestKey, oldest = key, item.access
		}
	}
	if oldestKey != "" {
		delete(m.data, oldestKey)
	}
}

func encode(value interface{}) ([]byte, error) {
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(value)
}

func decode(data []byte, dest interface{}) error {
	if strPtr, ok := dest.(*string); ok {
		*strPtr = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}
