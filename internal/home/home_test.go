package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	d := New("/tmp/coldpack-test")
	if d.Root() != "/tmp/coldpack-test" {
		t.Errorf("expected root /tmp/coldpack-test, got %s", d.Root())
	}
}

func TestDefault(t *testing.T) {
	d, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if d.Root() == "" {
		t.Fatal("expected non-empty root")
	}
	// Should end with "coldpack".
	if filepath.Base(d.Root()) != "coldpack" {
		t.Errorf("expected root to end with 'coldpack', got %s", d.Root())
	}
}

func TestConfigPath(t *testing.T) {
	d := New("/data")
	if got := d.ConfigPath(); got != "/data/config.db" {
		t.Errorf("got %s", got)
	}
}

func TestMetadataPath(t *testing.T) {
	d := New("/data")
	if got := d.MetadataPath(); got != "/data/metadata.db" {
		t.Errorf("got %s", got)
	}
}

func TestWorkspaceDir(t *testing.T) {
	d := New("/data")
	if got := d.WorkspaceDir("default"); got != "/data/datasets/default" {
		t.Errorf("got %s", got)
	}
	if got := d.WorkspaceDir("prod"); got != "/data/datasets/prod" {
		t.Errorf("got %s", got)
	}
}

func TestEnsureExists(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "coldpack")
	d := New(root)
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected directory")
	}

	// Calling again should be idempotent.
	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists (idempotent): %v", err)
	}
}
