package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"coldpack/internal/digest"
	"coldpack/internal/mdstore"
	"coldpack/internal/packer"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestTakeSnapshotWalksAndChunks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "world")
	writeFile(t, filepath.Join(root, "ignore.log"), "should be excluded")

	kv := mdstore.NewMemoryStore()
	pol, err := packer.DerivePolynomial(1)
	if err != nil {
		t.Fatalf("DerivePolynomial: %v", err)
	}

	var chunks []packer.Chunk
	sink := func(c packer.Chunk) error {
		chunks = append(chunks, c)
		return nil
	}

	eng := New(kv, digest.AlgoBLAKE3, pol, []string{"*.log"}, sink)
	result, err := eng.Take(context.Background(), "ds1", root, nil)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	snap := result.Snapshot

	if !result.Changed {
		t.Error("expected Changed to be true for a first snapshot")
	}
	if snap.RootTree.IsZero() {
		t.Error("expected non-zero RootTree digest")
	}
	if snap.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2 (a.txt, sub/b.txt; ignore.log excluded)", snap.FileCount)
	}
	if len(chunks) == 0 {
		t.Error("expected at least one chunk to be produced")
	}
	if len(result.Files) != 2 {
		t.Errorf("Files = %d, want 2", len(result.Files))
	}
	if !snap.Complete() {
		t.Error("snapshot should be Complete after Take returns")
	}
}

func TestTakeUnchangedReturnsNotChanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "stable content")

	kv := mdstore.NewMemoryStore()
	pol, err := packer.DerivePolynomial(3)
	if err != nil {
		t.Fatalf("DerivePolynomial: %v", err)
	}
	eng := New(kv, digest.AlgoBLAKE3, pol, nil, nil)

	first, err := eng.Take(context.Background(), "ds1", root, nil)
	if err != nil {
		t.Fatalf("Take (first): %v", err)
	}
	if !first.Changed {
		t.Fatal("expected first snapshot to report Changed")
	}

	second, err := eng.Take(context.Background(), "ds1", root, &first.Snapshot)
	if err != nil {
		t.Fatalf("Take (second): %v", err)
	}
	if second.Changed {
		t.Error("expected unchanged directory to report Changed: false")
	}
	if len(second.Files) != 0 {
		t.Errorf("expected no pending files for an unchanged run, got %d", len(second.Files))
	}
	if second.Snapshot.ID != first.Snapshot.ID {
		t.Error("expected unchanged run to return parent's own snapshot")
	}
}

func TestFindChangedFilesDetectsModification(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "version-1")
	writeFile(t, filepath.Join(root, "stable.txt"), "unchanged")

	kv := mdstore.NewMemoryStore()
	pol, err := packer.DerivePolynomial(2)
	if err != nil {
		t.Fatalf("DerivePolynomial: %v", err)
	}
	eng := New(kv, digest.AlgoBLAKE3, pol, nil, nil)

	first, err := eng.Take(context.Background(), "ds1", root, nil)
	if err != nil {
		t.Fatalf("Take (first): %v", err)
	}

	writeFile(t, filepath.Join(root, "a.txt"), "version-2-different-content")

	second, err := eng.Take(context.Background(), "ds1", root, &first.Snapshot)
	if err != nil {
		t.Fatalf("Take (second): %v", err)
	}

	changed, err := FindChangedFiles(context.Background(), kv, first.Snapshot, second.Snapshot)
	if err != nil {
		t.Fatalf("FindChangedFiles: %v", err)
	}
	sort.Strings(changed)
	if len(changed) != 1 || changed[0] != "a.txt" {
		t.Errorf("changed = %v, want [a.txt]", changed)
	}
}
