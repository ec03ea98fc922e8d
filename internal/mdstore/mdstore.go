// Package mdstore implements the metadata store: the single source of
// truth for every Chunk, File, Tree, Snapshot, and Pack record, addressed
// by string key (Dataset and Store records live in internal/config). Keys are namespaced by prefix
// ("chunk/", "file/", "tree/", "snapshot/", "pack/", "dbase/", "dataset/",
// "store/", "bucketmap/") so a single flat keyspace serves every entity
// kind.
package mdstore

import "context"

// KV is the metadata store's storage contract: a durable, prefix-scannable
// key/value map with an atomic backup/restore primitive. Both the bbolt
// implementation and the in-memory test fake satisfy it, and
// internal/mdstore/mdstoretest runs the same conformance suite against
// both.
type KV interface {
	// Get returns the value stored under key, or errs.ErrNotFound if it
	// does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a key that does not exist is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Scan calls fn for every key with the given prefix, in ascending
	// lexicographic key order, until fn returns false or every matching
	// key has been visited. Scan stops and returns fn's error if fn
	// returns one.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) (bool, error)) error

	// Backup writes a consistent point-in-time copy of the whole store to
	// path.
	Backup(ctx context.Context, path string) error

	// Restore replaces the live store's contents with the copy at path.
	// Callers must hold the store closed to all other access while doing
	// so.
	Restore(ctx context.Context, path string) error

	// Close releases any underlying file handles.
	Close() error
}

// Key prefixes, shared by every KV implementation and by callers building
// keys for Scan.
const (
	PrefixChunk     = "chunk/"
	PrefixFile      = "file/"
	PrefixTree      = "tree/"
	PrefixSnapshot  = "snapshot/"
	PrefixPack      = "pack/"
	PrefixDatabase  = "dbase/"
	PrefixDataset   = "dataset/"
	PrefixStore     = "store/"
	PrefixBucketMap = "bucketmap/"
)
