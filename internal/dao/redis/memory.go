package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"edulead_chat_server/pkg/errorx"
)

// MemoryStore is an in-process AsyncKVStore. It backs tests and lets the
// server come up without Redis in a single-instance dev setup. TTLs are
// enforced lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]memoryEntry
	lists   map[string]memoryList
	nowFunc func() time.Time
}

type memoryEntry struct {
	value    string
	expireAt time.Time
}

type memoryList struct {
	items    []string
	expireAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string]memoryEntry),
		lists:   make(map[string]memoryList),
		nowFunc: time.Now,
	}
}

// SetClock replaces the expiry clock; tests use it to age entries.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.nowFunc = now
	m.mu.Unlock()
}

func (m *MemoryStore) expired(at time.Time) bool {
	return !at.IsZero() && !m.nowFunc().Before(at)
}

func (m *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.nowFunc().Add(ttl)
}

func (m *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = memoryEntry{value: value, expireAt: m.deadline(ttl)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.values[key]
	if !ok || m.expired(entry.expireAt) {
		delete(m.values, key)
		return "", nil
	}
	return entry.value, nil
}

func (m *MemoryStore) GetOrError(ctx context.Context, key string) (string, error) {
	value, _ := m.Get(ctx, key)
	if value == "" {
		return "", errorx.Newf(errorx.CodeNotFound, "key %s not found", key)
	}
	return value, nil
}

func (m *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.values[key]
	if ok && !m.expired(entry.expireAt) {
		return false, nil
	}
	m.values[key] = memoryEntry{value: value, expireAt: m.deadline(ttl)}
	return true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.lists, key)
	return nil
}

func (m *MemoryStore) GetByPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]string)
	for key, entry := range m.values {
		if !strings.HasPrefix(key, prefix) || m.expired(entry.expireAt) {
			continue
		}
		result[key] = entry.value
	}
	return result, nil
}

func (m *MemoryStore) AppendToList(ctx context.Context, key, value string, max int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[key]
	if !ok || m.expired(list.expireAt) {
		list = memoryList{}
	}
	list.items = append(list.items, value)
	if max > 0 && int64(len(list.items)) > max {
		// Oldest entries fall off, same as LTRIM to the last max items.
		list.items = list.items[int64(len(list.items))-max:]
	}
	list.expireAt = m.deadline(ttl)
	m.lists[key] = list
	return nil
}

func (m *MemoryStore) ListRange(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[key]
	if !ok || m.expired(list.expireAt) {
		delete(m.lists, key)
		return nil, nil
	}
	out := make([]string, len(list.items))
	copy(out, list.items)
	return out, nil
}

func (m *MemoryStore) DrainList(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[key]
	delete(m.lists, key)
	if !ok || m.expired(list.expireAt) {
		return nil, nil
	}
	return list.items, nil
}

// SubmitTask runs the task synchronously; there is no worker pool to fill.
func (m *MemoryStore) SubmitTask(action func()) {
	action()
}

var _ AsyncKVStore = (*MemoryStore)(nil)
