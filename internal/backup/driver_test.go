package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"coldpack/internal/digest"
	"coldpack/internal/errs"
	"coldpack/internal/mdstore"
	"coldpack/internal/model"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDriverRunProducesPacksAndSnapshot(t *testing.T) {
	srcRoot := t.TempDir()
	writeTestFile(t, filepath.Join(srcRoot, "a.txt"), "some file content for chunking purposes")
	writeTestFile(t, filepath.Join(srcRoot, "b.txt"), "more file content, different bytes entirely")

	storeRoot := t.TempDir()
	kv := mdstore.NewMemoryStore()
	drv := New(kv, nil)

	dataset := model.Dataset{
		ID:             "ds1",
		Name:           "test dataset",
		BasePath:       srcRoot,
		StoreID:        "store1",
		PackSizeTarget: 16, // force many small packs so multiple Put calls happen
		Algorithm:      digest.AlgoBLAKE3,
		ChunkerSeed:    7,
	}
	store := model.Store{
		ID:         "store1",
		Type:       model.StoreLocal,
		Properties: map[string]string{"root": storeRoot},
	}

	result, err := drv.Run(context.Background(), dataset, store, "test-passphrase")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Snapshot.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", result.Snapshot.FileCount)
	}
	if result.PackCount == 0 {
		t.Error("expected at least one pack to be produced")
	}
	if result.OutOfTime {
		t.Error("did not expect OutOfTime")
	}

	if !result.Changed {
		t.Error("expected Changed to be true for a first run")
	}

	// Every produced pack record should be retrievable from the metadata store.
	var packKeys []string
	err = kv.Scan(context.Background(), mdstore.PrefixPack, func(key string, value []byte) (bool, error) {
		packKeys = append(packKeys, key)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(packKeys) != result.PackCount {
		t.Errorf("found %d pack records, want %d", len(packKeys), result.PackCount)
	}

	// Every pack's chunk entries should each have a chunk/<digest> record.
	var chunkKeys []string
	err = kv.Scan(context.Background(), mdstore.PrefixChunk, func(key string, value []byte) (bool, error) {
		chunkKeys = append(chunkKeys, key)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Scan (chunk): %v", err)
	}
	if len(chunkKeys) == 0 {
		t.Error("expected at least one chunk record")
	}

	// File records should exist for every file in the snapshot.
	var fileKeys []string
	err = kv.Scan(context.Background(), mdstore.PrefixFile, func(key string, value []byte) (bool, error) {
		fileKeys = append(fileKeys, key)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Scan (file): %v", err)
	}
	if len(fileKeys) != 2 {
		t.Errorf("found %d file records, want 2", len(fileKeys))
	}

	// The snapshot record itself should be retrievable.
	if _, err := kv.Get(context.Background(), mdstore.PrefixSnapshot+result.Snapshot.ID); err != nil {
		t.Errorf("Get snapshot record: %v", err)
	}

	// A database-backup pseudo-pack should have been recorded.
	var dbaseKeys []string
	err = kv.Scan(context.Background(), mdstore.PrefixDatabase, func(key string, value []byte) (bool, error) {
		dbaseKeys = append(dbaseKeys, key)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Scan (dbase): %v", err)
	}
	if len(dbaseKeys) != 1 {
		t.Errorf("found %d database-backup records, want 1", len(dbaseKeys))
	}
}

func TestDriverRunSecondUnchangedRunReportsNoChange(t *testing.T) {
	srcRoot := t.TempDir()
	writeTestFile(t, filepath.Join(srcRoot, "a.txt"), "stable content for this run")

	kv := mdstore.NewMemoryStore()
	drv := New(kv, nil)

	dataset := model.Dataset{
		ID:             "ds1",
		BasePath:       srcRoot,
		StoreID:        "store1",
		PackSizeTarget: 1024 * 1024,
		Algorithm:      digest.AlgoBLAKE3,
		ChunkerSeed:    9,
	}
	store := model.Store{ID: "store1", Type: model.StoreLocal, Properties: map[string]string{"root": t.TempDir()}}

	first, err := drv.Run(context.Background(), dataset, store, "pw")
	if err != nil {
		t.Fatalf("Run (first): %v", err)
	}
	if !first.Changed {
		t.Fatal("expected first run to report Changed")
	}
	dataset.LatestSnapshot = first.Snapshot.ID

	second, err := drv.Run(context.Background(), dataset, store, "pw")
	if err != nil {
		t.Fatalf("Run (second): %v", err)
	}
	if second.Changed {
		t.Error("expected second run with no file changes to report Changed: false")
	}
	if second.PackCount != 0 {
		t.Errorf("PackCount = %d, want 0 for an unchanged run", second.PackCount)
	}
	if second.Snapshot.ID != first.Snapshot.ID {
		t.Error("expected unchanged run to return the parent's own snapshot")
	}
}

func TestDriverRunRespectsDeadline(t *testing.T) {
	srcRoot := t.TempDir()
	writeTestFile(t, filepath.Join(srcRoot, "a.txt"), "content")

	kv := mdstore.NewMemoryStore()
	drv := New(kv, nil)

	dataset := model.Dataset{
		ID:             "ds1",
		BasePath:       srcRoot,
		StoreID:        "store1",
		PackSizeTarget: 1024,
		Algorithm:      digest.AlgoBLAKE3,
		ChunkerSeed:    1,
	}
	store := model.Store{ID: "store1", Type: model.StoreLocal, Properties: map[string]string{"root": t.TempDir()}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already expired

	_, err := drv.Run(ctx, dataset, store, "pw")
	if !errors.Is(err, errs.ErrOutOfTime) {
		t.Errorf("Run error = %v, want errs.ErrOutOfTime", err)
	}
}
