// Package mdstoretest runs a shared behavioral conformance suite against
// any mdstore.KV implementation, the way the teacher's
// internal/config/storetest package exercises every config.Store
// implementation with one suite.
package mdstoretest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"coldpack/internal/errs"
	"coldpack/internal/mdstore"
)

// Run exercises kv's full KV contract. newFn must return a fresh, empty
// store each time it is called (used for the backup/restore subtest, which
// needs a second, distinct store to restore into).
func Run(t *testing.T, kv mdstore.KV, newFn func(t *testing.T) mdstore.KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissingReturnsNotFound", func(t *testing.T) {
		_, err := kv.Get(ctx, "does-not-exist")
		if !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want errs.ErrNotFound", err)
		}
	})

	t.Run("PutThenGet", func(t *testing.T) {
		if err := kv.Put(ctx, "dataset/alpha", []byte("payload-1")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := kv.Get(ctx, "dataset/alpha")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "payload-1" {
			t.Errorf("Get = %q, want %q", got, "payload-1")
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		if err := kv.Put(ctx, "dataset/beta", []byte("first")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := kv.Put(ctx, "dataset/beta", []byte("second")); err != nil {
			t.Fatalf("Put (overwrite): %v", err)
		}
		got, err := kv.Get(ctx, "dataset/beta")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "second" {
			t.Errorf("Get after overwrite = %q, want %q", got, "second")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := kv.Put(ctx, "dataset/gamma", []byte("x")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := kv.Delete(ctx, "dataset/gamma"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := kv.Get(ctx, "dataset/gamma"); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Get after delete error = %v, want errs.ErrNotFound", err)
		}
		// Deleting an already-absent key is not an error.
		if err := kv.Delete(ctx, "dataset/gamma"); err != nil {
			t.Errorf("Delete (idempotent): %v", err)
		}
	})

	t.Run("ScanPrefixOrder", func(t *testing.T) {
		entries := map[string]string{
			"store/1": "one",
			"store/2": "two",
			"store/3": "three",
			"other/1": "ignored",
		}
		for k, v := range entries {
			if err := kv.Put(ctx, k, []byte(v)); err != nil {
				t.Fatalf("Put(%q): %v", k, err)
			}
		}

		var keys []string
		err := kv.Scan(ctx, "store/", func(key string, value []byte) (bool, error) {
			keys = append(keys, key)
			return true, nil
		})
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if len(keys) != 3 {
			t.Fatalf("Scan returned %d keys, want 3: %v", len(keys), keys)
		}
		for i := 1; i < len(keys); i++ {
			if keys[i-1] >= keys[i] {
				t.Errorf("Scan did not return keys in ascending order: %v", keys)
				break
			}
		}
	})

	t.Run("ScanStopsEarly", func(t *testing.T) {
		var seen int
		err := kv.Scan(ctx, "store/", func(key string, value []byte) (bool, error) {
			seen++
			return false, nil
		})
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		if seen != 1 {
			t.Errorf("Scan visited %d keys after early stop, want 1", seen)
		}
	})

	t.Run("BackupRestore", func(t *testing.T) {
		if err := kv.Put(ctx, "pack/p1", []byte("pack-bytes")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		backupPath := filepath.Join(t.TempDir(), "backup.db")
		if err := kv.Backup(ctx, backupPath); err != nil {
			t.Fatalf("Backup: %v", err)
		}

		fresh := newFn(t)
		if err := fresh.Restore(ctx, backupPath); err != nil {
			t.Fatalf("Restore: %v", err)
		}
		got, err := fresh.Get(ctx, "pack/p1")
		if err != nil {
			t.Fatalf("Get after restore: %v", err)
		}
		if string(got) != "pack-bytes" {
			t.Errorf("Get after restore = %q, want %q", got, "pack-bytes")
		}
	})
}
