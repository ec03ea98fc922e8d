package packstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"coldpack/internal/errs"
)

// Local implements PackStore against a directory on the local filesystem:
// bucket maps to a subdirectory, object maps to a file within it.
type Local struct {
	root string
}

// NewLocal creates a Local pack store rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) bucketDir(bucket string) string {
	return filepath.Join(l.root, bucket)
}

func (l *Local) EnsureBucket(_ context.Context, bucket string) error {
	if err := os.MkdirAll(l.bucketDir(bucket), 0o750); err != nil {
		return fmt.Errorf("packstore(local): ensure bucket %s: %w", bucket, err)
	}
	return nil
}

func (l *Local) Put(_ context.Context, bucket, key string, data io.Reader, _ int64) error {
	dir := l.bucketDir(bucket)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("packstore(local): mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, key)
	f, err := os.Create(path) //nolint:gosec // G304: key is a pack object name we generated ourselves
	if err != nil {
		return fmt.Errorf("packstore(local): create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("packstore(local): write %s: %w", path, err)
	}
	return nil
}

func (l *Local) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	path := filepath.Join(l.bucketDir(bucket), key)
	f, err := os.Open(path) //nolint:gosec // G304: key is a pack object name we generated ourselves
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("packstore(local): %s: %w", path, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("packstore(local): open %s: %w", path, err)
	}
	return f, nil
}

func (l *Local) List(_ context.Context, bucket string) ([]ObjectInfo, error) {
	dir := l.bucketDir(bucket)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("packstore(local): readdir %s: %w", dir, err)
	}
	out := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ObjectInfo{Key: e.Name(), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (l *Local) Delete(_ context.Context, bucket, key string) error {
	path := filepath.Join(l.bucketDir(bucket), key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("packstore(local): remove %s: %w", path, err)
	}
	return nil
}
