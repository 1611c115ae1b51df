package store

import (
	"bytes"
	"context"
	"sync"

	"github.com/jonwraymond/proccache/digest"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[digest.Digest][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[digest.Digest][]byte),
	}
}

// Get returns a copy of the stored value. Returns (nil, false, nil) on miss.
func (s *MemoryStore) Get(ctx context.Context, key digest.Digest) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	value, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

// Put stores a copy of value.
func (s *MemoryStore) Put(ctx context.Context, key digest.Digest, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	stored := bytes.Clone(value)
	if stored == nil {
		stored = []byte{}
	}

	s.mu.Lock()
	s.entries[key] = stored
	s.mu.Unlock()

	return nil
}

// Delete removes a value. Idempotent - no error on miss.
func (s *MemoryStore) Delete(_ context.Context, key digest.Digest) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored values.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
