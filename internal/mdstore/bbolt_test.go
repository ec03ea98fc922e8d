package mdstore_test

import (
	"path/filepath"
	"testing"

	"coldpack/internal/mdstore"
	"coldpack/internal/mdstore/mdstoretest"
)

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	db, err := mdstore.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mdstoretest.Run(t, db, func(t *testing.T) mdstore.KV {
		p := filepath.Join(t.TempDir(), "fresh.db")
		fresh, err := mdstore.Open(p)
		if err != nil {
			t.Fatalf("Open fresh store: %v", err)
		}
		t.Cleanup(func() { _ = fresh.Close() })
		return fresh
	})
}
