// Package storetest provides a shared conformance test suite for config.Store
// implementations. Each backend (memory, sqlite) wires this suite to verify
// it satisfies the Store contract.
package storetest

import (
	"context"
	"testing"

	"coldpack/internal/config"
	"coldpack/internal/digest"
	"coldpack/internal/model"
)

// TestStore runs the full conformance suite against a Store implementation.
// newStore must return a fresh, empty store for each sub-test.
func TestStore(t *testing.T, newStore func(t *testing.T) config.Store) {
	t.Run("LoadEmpty", func(t *testing.T) {
		s := newStore(t)
		cfg, err := s.Load(context.Background())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg != nil {
			t.Fatalf("expected nil config from empty store, got %+v", cfg)
		}
	})

	t.Run("SaveThenLoad", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		weekday := 1
		cfg := &config.Config{
			Datasets: []model.Dataset{
				{
					ID:             "ds1",
					Name:           "home",
					BasePath:       "/home/alice",
					StoreID:        "store1",
					Excludes:       []string{"*.tmp", ".cache/"},
					Schedules:      []model.Schedule{{Frequency: "weekly", Weekday: &weekday}},
					PackSizeTarget: 64 << 20,
					Algorithm:      digest.AlgoBLAKE3,
					ChunkerSeed:    7,
				},
			},
			Stores: []model.Store{
				{ID: "store1", Label: "primary", Type: model.StoreLocal, Properties: map[string]string{"root": "/backups"}},
			},
		}

		if err := s.Save(ctx, cfg); err != nil {
			t.Fatalf("Save: %v", err)
		}

		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got == nil {
			t.Fatal("expected config, got nil")
		}
		if len(got.Datasets) != 1 {
			t.Fatalf("expected 1 dataset, got %d", len(got.Datasets))
		}
		ds := got.Datasets[0]
		if ds.ID != "ds1" || ds.BasePath != "/home/alice" || ds.StoreID != "store1" {
			t.Errorf("dataset mismatch: %+v", ds)
		}
		if len(ds.Excludes) != 2 || ds.Excludes[0] != "*.tmp" {
			t.Errorf("excludes mismatch: %+v", ds.Excludes)
		}
		if len(ds.Schedules) != 1 || ds.Schedules[0].Frequency != "weekly" {
			t.Errorf("schedules mismatch: %+v", ds.Schedules)
		}
		if ds.Schedules[0].Weekday == nil || *ds.Schedules[0].Weekday != 1 {
			t.Errorf("weekday mismatch: %+v", ds.Schedules[0].Weekday)
		}

		if len(got.Stores) != 1 {
			t.Fatalf("expected 1 store, got %d", len(got.Stores))
		}
		st := got.Stores[0]
		if st.ID != "store1" || st.Type != model.StoreLocal || st.Properties["root"] != "/backups" {
			t.Errorf("store mismatch: %+v", st)
		}
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Save(ctx, &config.Config{
			Datasets: []model.Dataset{{ID: "a", BasePath: "/a", StoreID: "s1"}},
			Stores:   []model.Store{{ID: "s1", Type: model.StoreLocal}},
		}); err != nil {
			t.Fatalf("first Save: %v", err)
		}

		if err := s.Save(ctx, &config.Config{
			Datasets: []model.Dataset{{ID: "b", BasePath: "/b", StoreID: "s2"}},
			Stores:   []model.Store{{ID: "s2", Type: model.StoreLocal}},
		}); err != nil {
			t.Fatalf("second Save: %v", err)
		}

		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(got.Datasets) != 1 || got.Datasets[0].ID != "b" {
			t.Errorf("expected only dataset 'b' after overwrite, got %+v", got.Datasets)
		}
		if len(got.Stores) != 1 || got.Stores[0].ID != "s2" {
			t.Errorf("expected only store 's2' after overwrite, got %+v", got.Stores)
		}
	})

	t.Run("SaveEmptyClearsAll", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Save(ctx, &config.Config{
			Datasets: []model.Dataset{{ID: "a", BasePath: "/a", StoreID: "s1"}},
			Stores:   []model.Store{{ID: "s1", Type: model.StoreLocal}},
		}); err != nil {
			t.Fatalf("Save: %v", err)
		}

		if err := s.Save(ctx, &config.Config{}); err != nil {
			t.Fatalf("Save empty: %v", err)
		}

		got, err := s.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil config after clearing, got %+v", got)
		}
	})
}
