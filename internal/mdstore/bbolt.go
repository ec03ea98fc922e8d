package mdstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.etcd.io/bbolt"

	"coldpack/internal/errs"
)

var bucketName = []byte("coldpack")

// BoltStore is the production KV implementation, backed by a single
// go.etcd.io/bbolt database file. Every documented key prefix lives inside
// one bucket; Scan uses a cursor.Seek-based prefix walk rather than one
// bucket per entity kind, since bbolt buckets do not support efficient
// cross-bucket transactions and the backup/restore primitive wants a
// single consistent file.
type BoltStore struct {
	mu sync.Mutex // serializes Backup and Restore against each other; Get/Put/Delete/Scan do not take it
	db *bbolt.DB
}

// Open opens (creating if necessary) the bbolt database at path.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("mdstore: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mdstore: create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return errs.ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mdstore: get %q: %w", key, err)
	}
	return value, nil
}

func (s *BoltStore) Put(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("mdstore: put %q: %w", key, err)
	}
	return nil
}

func (s *BoltStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("mdstore: delete %q: %w", key, err)
	}
	return nil
}

func (s *BoltStore) Scan(_ context.Context, prefix string, fn func(key string, value []byte) (bool, error)) error {
	prefixBytes := []byte(prefix)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(prefixBytes); k != nil && hasPrefix(k, prefixBytes); k, v = c.Next() {
			cont, err := fn(string(k), append([]byte(nil), v...))
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mdstore: scan %q: %w", prefix, err)
	}
	return nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Backup streams a read-only transaction's contents to path, giving a
// flush-consistent copy without blocking writers for the whole duration.
func (s *BoltStore) Backup(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(path) //nolint:gosec // G304: path is operator-supplied, not user-controlled web input
	if err != nil {
		return fmt.Errorf("mdstore: create backup file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	err = s.db.View(func(tx *bbolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
	if err != nil {
		return fmt.Errorf("mdstore: backup: %w", err)
	}
	return nil
}

// Restore replaces the live database file with the copy at path. Callers
// must ensure no other goroutine is using the store for the duration.
func (s *BoltStore) Restore(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbPath := s.db.Path()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("mdstore: close before restore: %w", err)
	}

	src, err := os.Open(path) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		return fmt.Errorf("mdstore: open restore source %s: %w", path, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(dbPath) //nolint:gosec // G304
	if err != nil {
		return fmt.Errorf("mdstore: recreate db file: %w", err)
	}
	if _, err := dst.ReadFrom(src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("mdstore: write restored contents: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("mdstore: close restored db file: %w", err)
	}

	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("mdstore: reopen after restore: %w", err)
	}
	s.db = db
	return nil
}

func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("mdstore: close: %w", err)
	}
	return nil
}
