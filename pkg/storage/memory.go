package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mtx     sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores a copy of data under ref. Overwriting an existing reference is
// rejected; references are single-assignment.
func (s *MemoryStore) Put(ctx context.Context, ref string, data []byte, contentType string) error {
	if ref == "" {
		return fmt.Errorf("storage: empty reference")
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, exists := s.objects[ref]; exists {
		return fmt.Errorf("%w: %q", ErrExists, ref)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[ref] = buf
	return nil
}

// Get returns a copy of the bytes stored under ref.
func (s *MemoryStore) Get(ctx context.Context, ref string) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	data, ok := s.objects[ref]
	if !ok {
		return nil, ErrNotFound
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Delete removes the object stored under ref. Deleting a missing reference
// is a no-op so purge retries stay idempotent.
func (s *MemoryStore) Delete(ctx context.Context, ref string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.objects, ref)
	return nil
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.objects)
}
