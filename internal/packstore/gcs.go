package packstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"coldpack/internal/errs"
)

// GCS implements PackStore against Google Cloud Storage: bucket maps to a
// GCS bucket, object maps to an object name within it.
type GCS struct {
	client *storage.Client
}

// NewGCS builds a GCS-backed PackStore, using Application Default
// Credentials unless the environment points elsewhere.
func NewGCS(ctx context.Context) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("packstore(gcs): new client: %w", err)
	}
	return &GCS{client: client}, nil
}

func (g *GCS) EnsureBucket(ctx context.Context, bucket string) error {
	b := g.client.Bucket(bucket)
	if _, err := b.Attrs(ctx); err == nil {
		return nil
	}
	// GCS buckets are project-scoped. Creation is attempted with an empty
	// project id; no project id is read from the Store record here.
	if err := b.Create(ctx, "", nil); err != nil {
		return fmt.Errorf("packstore(gcs): create bucket %s: %w", bucket, err)
	}
	return nil
}

func (g *GCS) Put(ctx context.Context, bucket, key string, data io.Reader, _ int64) error {
	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("packstore(gcs): write %s/%s: %w", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("packstore(gcs): close writer %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("packstore(gcs): %s/%s: %w", bucket, key, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("packstore(gcs): read %s/%s: %w", bucket, key, err)
	}
	return r, nil
}

func (g *GCS) List(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	it := g.client.Bucket(bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("packstore(gcs): list %s: %w", bucket, err)
		}
		out = append(out, ObjectInfo{Key: attrs.Name, Size: attrs.Size, ETag: attrs.Etag})
	}
	return out, nil
}

func (g *GCS) Delete(ctx context.Context, bucket, key string) error {
	err := g.client.Bucket(bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("packstore(gcs): delete %s/%s: %w", bucket, key, err)
	}
	return nil
}
