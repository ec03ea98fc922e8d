package mdstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"coldpack/internal/errs"
)

// MemoryStore is an in-memory KV implementation for tests, following the
// same sync.RWMutex-guarded-map structure as the teacher's
// internal/config/memory store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("mdstore: get %q: %w", key, errs.ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, prefix string, fn func(key string, value []byte) (bool, error)) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = s.data[k]
	}
	s.mu.RUnlock()

	for _, k := range keys {
		cont, err := fn(k, snapshot[k])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Backup serializes the store as a sequence of length-prefixed key/value
// pairs, mirroring the framing internal/codec uses elsewhere so the format
// stays internally consistent even though bbolt's Backup uses its own
// native file format.
func (s *MemoryStore) Backup(_ context.Context, path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Create(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		return fmt.Errorf("mdstore: create backup file: %w", err)
	}
	defer func() { _ = f.Close() }()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := writeKV(f, k, s.data[k]); err != nil {
			return fmt.Errorf("mdstore: write backup entry: %w", err)
		}
	}
	return nil
}

func (s *MemoryStore) Restore(_ context.Context, path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		return fmt.Errorf("mdstore: open restore source: %w", err)
	}
	defer func() { _ = f.Close() }()

	data := make(map[string][]byte)
	for {
		k, v, err := readKV(f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("mdstore: read restore entry: %w", err)
		}
		data[k] = v
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
