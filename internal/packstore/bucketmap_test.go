package packstore

import (
	"context"
	"testing"

	"coldpack/internal/mdstore"
	"coldpack/internal/model"
)

func modelStoreLocal(t *testing.T) model.Store {
	t.Helper()
	return model.Store{
		ID:         "store1",
		Type:       model.StoreLocal,
		Properties: map[string]string{"root": t.TempDir()},
	}
}

func TestResolveBucketNoCollision(t *testing.T) {
	kv := mdstore.NewMemoryStore()
	got, err := ResolveBucket(context.Background(), kv, "store1", "backups", func(string) (bool, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("ResolveBucket: %v", err)
	}
	if got != "backups" {
		t.Errorf("got %q, want %q", got, "backups")
	}
}

func TestResolveBucketCollisionRemapsAndPersists(t *testing.T) {
	kv := mdstore.NewMemoryStore()
	calls := 0
	takenFn := func(candidate string) (bool, error) {
		calls++
		return candidate == "backups", nil
	}

	got, err := ResolveBucket(context.Background(), kv, "store1", "backups", takenFn)
	if err != nil {
		t.Fatalf("ResolveBucket: %v", err)
	}
	if got != "backups-2" {
		t.Errorf("got %q, want %q", got, "backups-2")
	}

	// A second call for the same store/logical-bucket must reuse the
	// persisted mapping without calling taken again.
	again, err := ResolveBucket(context.Background(), kv, "store1", "backups", func(string) (bool, error) {
		t.Fatal("taken should not be called once a mapping is persisted")
		return false, nil
	})
	if err != nil {
		t.Fatalf("ResolveBucket (second call): %v", err)
	}
	if again != got {
		t.Errorf("second call returned %q, want %q", again, got)
	}
	_ = calls
}

func TestOpenLocal(t *testing.T) {
	store := modelStoreLocal(t)
	ps, err := Open(context.Background(), store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := ps.(*Local); !ok {
		t.Errorf("Open(LOCAL) returned %T, want *Local", ps)
	}
}
