// Package packstore implements the PackStore external interface: a
// uniform put/get/list/delete contract over whichever remote object store
// a Store record names, plus one adapter per supported backend.
package packstore

import (
	"context"
	"io"
)

// ObjectInfo describes one stored pack object.
type ObjectInfo struct {
	Key  string
	Size int64
	// ETag is the backend-reported content hash where the backend exposes
	// one (S3-compatible ETags, Azure content-MD5), filled in by List. No
	// adapter compares it against a locally computed hash.
	ETag string
}

// PackStore is the uniform external interface every backend adapter
// implements. Bucket names are backend-agnostic: an adapter maps Bucket to
// whatever its backend calls that concept (S3 bucket, Azure container,
// local subdirectory, SFTP remote directory).
type PackStore interface {
	// Put uploads data as object key within bucket.
	Put(ctx context.Context, bucket, key string, data io.Reader, size int64) error

	// Get downloads object key within bucket. The caller must Close the
	// returned ReadCloser.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// List enumerates every object under bucket.
	List(ctx context.Context, bucket string) ([]ObjectInfo, error)

	// Delete removes object key within bucket.
	Delete(ctx context.Context, bucket, key string) error

	// EnsureBucket creates bucket if the backend requires buckets to exist
	// before objects can be written to them (S3, Azure, GCS). Local and
	// SFTP create the bucket directory here, and their Put also creates it
	// on first write.
	EnsureBucket(ctx context.Context, bucket string) error
}
