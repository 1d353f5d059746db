package store

import (
	"context"
	"sync"
)

// Backend is the durable storage behind a Store.
type Backend interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Has(ctx context.Context, key Key) (bool, error)
	// PutBatch commits all entries atomically.
	PutBatch(ctx context.Context, entries []Entry) error
	// ForEach visits every stored document until fn returns false.
	ForEach(ctx context.Context, fn func(Entry) bool) error
	Close() error
}

// MemoryBackend keeps documents in a map. Used by tests and the "memory"
// backend setting.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[Key][]byte

	// Hooks for tests; nil means no-op.
	OnGet func(Key) error
	OnPut func([]Entry) error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[Key][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key Key) ([]byte, bool, error) {
	if m.OnGet != nil {
		if err := m.OnGet(key); err != nil {
			return nil, false, err
		}
	}
	m.mu.RLock()
	data, ok := m.docs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	dup := make([]byte, len(data))
	copy(dup, data)
	return dup, true, nil
}

func (m *MemoryBackend) Has(_ context.Context, key Key) (bool, error) {
	m.mu.RLock()
	_, ok := m.docs[key]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryBackend) PutBatch(_ context.Context, entries []Entry) error {
	if m.OnPut != nil {
		if err := m.OnPut(entries); err != nil {
			return err
		}
	}
	m.mu.Lock()
	for _, e := range entries {
		dup := make([]byte, len(e.Data))
		copy(dup, e.Data)
		m.docs[e.Key] = dup
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) ForEach(_ context.Context, fn func(Entry) bool) error {
	m.mu.RLock()
	entries := make([]Entry, 0, len(m.docs))
	for k, v := range m.docs {
		entries = append(entries, Entry{Key: k, Data: v})
	}
	m.mu.RUnlock()
	for _, e := range entries {
		if !fn(e) {
			break
		}
	}
	return nil
}

// Len returns the number of stored documents.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryBackend) Close() error { return nil }
