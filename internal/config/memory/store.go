// Package memory provides an in-memory config.Store implementation.
// Intended for testing. Configuration is not persisted across restarts.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"coldpack/internal/config"
	"coldpack/internal/model"
)

// Store is an in-memory config.Store implementation.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]model.Dataset
	stores   map[string]model.Store
}

var _ config.Store = (*Store)(nil)

// NewStore creates a new in-memory config.Store.
func NewStore() *Store {
	return &Store{
		datasets: make(map[string]model.Dataset),
		stores:   make(map[string]model.Store),
	}
}

// Load returns the full configuration. Returns nil if no entities exist.
func (s *Store) Load(_ context.Context) (*config.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.datasets) == 0 && len(s.stores) == 0 {
		return nil, nil
	}

	cfg := &config.Config{}
	for _, ds := range s.datasets {
		cfg.Datasets = append(cfg.Datasets, copyDataset(ds))
	}
	slices.SortFunc(cfg.Datasets, func(a, b model.Dataset) int { return cmpString(a.ID, b.ID) })

	for _, st := range s.stores {
		cfg.Stores = append(cfg.Stores, copyStore(st))
	}
	slices.SortFunc(cfg.Stores, func(a, b model.Store) int { return cmpString(a.ID, b.ID) })

	return cfg, nil
}

// Save replaces the entire configuration with cfg.
func (s *Store) Save(_ context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.datasets = make(map[string]model.Dataset, len(cfg.Datasets))
	for _, ds := range cfg.Datasets {
		s.datasets[ds.ID] = copyDataset(ds)
	}
	s.stores = make(map[string]model.Store, len(cfg.Stores))
	for _, st := range cfg.Stores {
		s.stores[st.ID] = copyStore(st)
	}
	return nil
}

// Close is a no-op: there is nothing to release.
func (s *Store) Close() error { return nil }

// Datasets

func (s *Store) GetDataset(_ context.Context, id string) (*model.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[id]
	if !ok {
		return nil, nil
	}
	c := copyDataset(ds)
	return &c, nil
}

func (s *Store) ListDatasets(_ context.Context) ([]model.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Dataset, 0, len(s.datasets))
	for _, ds := range s.datasets {
		result = append(result, copyDataset(ds))
	}
	slices.SortFunc(result, func(a, b model.Dataset) int { return cmpString(a.ID, b.ID) })
	return result, nil
}

func (s *Store) PutDataset(_ context.Context, ds model.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.datasets[ds.ID] = copyDataset(ds)
	return nil
}

func (s *Store) DeleteDataset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.datasets[id]; !ok {
		return fmt.Errorf("dataset %q not found", id)
	}
	delete(s.datasets, id)
	return nil
}

// Stores

func (s *Store) GetStore(_ context.Context, id string) (*model.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[id]
	if !ok {
		return nil, nil
	}
	c := copyStore(st)
	return &c, nil
}

func (s *Store) ListStores(_ context.Context) ([]model.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Store, 0, len(s.stores))
	for _, st := range s.stores {
		result = append(result, copyStore(st))
	}
	slices.SortFunc(result, func(a, b model.Store) int { return cmpString(a.ID, b.ID) })
	return result, nil
}

func (s *Store) PutStore(_ context.Context, st model.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stores[st.ID] = copyStore(st)
	return nil
}

func (s *Store) DeleteStore(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stores[id]; !ok {
		return fmt.Errorf("store %q not found", id)
	}
	delete(s.stores, id)
	return nil
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func copyDataset(ds model.Dataset) model.Dataset {
	c := ds
	c.Excludes = append([]string(nil), ds.Excludes...)
	c.Schedules = append([]model.Schedule(nil), ds.Schedules...)
	return c
}

func copyStore(st model.Store) model.Store {
	c := st
	if st.Properties != nil {
		c.Properties = make(map[string]string, len(st.Properties))
		for k, v := range st.Properties {
			c.Properties[k] = v
		}
	}
	return c
}
