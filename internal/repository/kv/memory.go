package kv

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps tables in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[string][]byte),
	}
}

// Set writes a copy of value under key.
func (m *MemoryStore) Set(_ context.Context, key Key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tables[key.Table] == nil {
		m.tables[key.Table] = make(map[string][]byte, 1)
	}

	m.tables[key.Table][key.ID] = bytes.Clone(value)

	return nil
}

// GetAll returns copies of every value of table.
func (m *MemoryStore) GetAll(_ context.Context, table string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string][]byte, len(m.tables[table]))
	for id, value := range m.tables[table] {
		result[id] = bytes.Clone(value)
	}

	return result, nil
}

// Clear drops table.
func (m *MemoryStore) Clear(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tables, table)

	return nil
}

// CompareAndReplace swaps the value under key if it equals expected.
func (m *MemoryStore) CompareAndReplace(_ context.Context, key Key, expected, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.tables[key.Table][key.ID]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	if !bytes.Equal(current, expected) {
		return fmt.Errorf("%s: %w", key, ErrConflict)
	}

	m.tables[key.Table][key.ID] = bytes.Clone(value)

	return nil
}
