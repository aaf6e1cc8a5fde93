package services

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryObjectStore is an in-process ObjectStore used by tests and local
// development without S3
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	deleted []string
}

// NewMemoryObjectStore creates an empty store
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string][]byte)}
}

func (m *MemoryObjectStore) Put(_ context.Context, key string, body io.ReadSeeker, _ string) error {
	content, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = content
	return nil
}

func (m *MemoryObjectStore) PresignGet(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	return "https://objects.local/" + key + "?signature=test", nil
}

func (m *MemoryObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// Exists reports whether key is stored
func (m *MemoryObjectStore) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Deleted returns the keys passed to Delete, in order
func (m *MemoryObjectStore) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}
