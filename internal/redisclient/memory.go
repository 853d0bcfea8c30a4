package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryClient is the in-process stand-in used when REDIS_ADDR is empty.
// It offers the same idempotency, lock and cache operations as Client
// but only within a single server process.
type MemoryClient struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryClient creates an empty in-process client
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryClient) Ping(ctx context.Context) error { return nil }

func (m *MemoryClient) Close() error { return nil }

func (m *MemoryClient) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotent result: %w", err)
	}
	m.setNX(idempotencyKey(key), data, ttl)
	return nil
}

func (m *MemoryClient) GetIdempotencyKey(ctx context.Context, key string, dest interface{}) (bool, error) {
	return m.getJSON(idempotencyKey(key), dest)
}

func (m *MemoryClient) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return m.setNX(fmt.Sprintf("lock:%s", lockKey), []byte("1"), ttl), nil
}

func (m *MemoryClient) ReleaseLock(ctx context.Context, lockKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, fmt.Sprintf("lock:%s", lockKey))
	return nil
}

func (m *MemoryClient) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	return m.getJSON(cacheKey(key), dest)
}

func (m *MemoryClient) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cacheKey(key)] = m.entry(data, ttl)
	return nil
}

func (m *MemoryClient) Invalidate(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, cacheKey(k))
	}
	return nil
}

func (m *MemoryClient) setNX(key string, data []byte, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false
	}
	m.entries[key] = m.entry(data, ttl)
	return true
}

func (m *MemoryClient) getJSON(key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	e, ok := m.live(key)
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// live must be called with mu held; expired entries are evicted lazily
func (m *MemoryClient) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryClient) entry(data []byte, ttl time.Duration) memoryEntry {
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	return e
}
