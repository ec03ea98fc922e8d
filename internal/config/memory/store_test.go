package memory

import (
	"context"
	"testing"

	"coldpack/internal/config"
	"coldpack/internal/config/storetest"
	"coldpack/internal/model"
)

func TestConformance(t *testing.T) {
	storetest.TestStore(t, func(t *testing.T) config.Store {
		return NewStore()
	})
}

func TestStoreIsolation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.PutDataset(ctx, model.Dataset{
		ID: "ds1", BasePath: "/home", StoreID: "s1",
		Excludes: []string{"*.tmp"},
	}); err != nil {
		t.Fatalf("PutDataset: %v", err)
	}

	got, err := s.GetDataset(ctx, "ds1")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	got.BasePath = "/mutated"
	got.Excludes[0] = "mutated"

	got2, err := s.GetDataset(ctx, "ds1")
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if got2.BasePath != "/home" {
		t.Errorf("expected BasePath %q, got %q", "/home", got2.BasePath)
	}
	if got2.Excludes[0] != "*.tmp" {
		t.Errorf("expected Excludes[0] %q, got %q", "*.tmp", got2.Excludes[0])
	}
}

func TestDatasetStoreCRUD(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.PutStore(ctx, model.Store{ID: "s1", Type: model.StoreLocal}); err != nil {
		t.Fatalf("PutStore: %v", err)
	}
	if err := s.PutDataset(ctx, model.Dataset{ID: "ds1", BasePath: "/a", StoreID: "s1"}); err != nil {
		t.Fatalf("PutDataset: %v", err)
	}

	list, err := s.ListDatasets(ctx)
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 dataset, got %d", len(list))
	}

	if err := s.DeleteDataset(ctx, "ds1"); err != nil {
		t.Fatalf("DeleteDataset: %v", err)
	}
	if err := s.DeleteDataset(ctx, "nonexistent"); err == nil {
		t.Fatal("expected error deleting nonexistent dataset")
	}

	got, err := s.GetStore(ctx, "s1")
	if err != nil {
		t.Fatalf("GetStore: %v", err)
	}
	if got == nil {
		t.Fatal("expected store, got nil")
	}
}
