package packstore

import (
	"context"
	"errors"
	"fmt"

	"coldpack/internal/errs"
	"coldpack/internal/mdstore"
)

// ResolveBucket returns the physical bucket name a store should use for a
// dataset's logical bucket, remapping it to "<logical>-2", "-3", ... the
// first time a collision is detected against another store already using
// that name, and persisting the chosen mapping so it stays stable across
// runs. Most datasets never collide and get the logical name back
// unchanged.
func ResolveBucket(ctx context.Context, kv mdstore.KV, storeID, logicalBucket string, taken func(candidate string) (bool, error)) (string, error) {
	mapKey := mdstore.PrefixBucketMap + storeID + "/" + logicalBucket

	existing, err := kv.Get(ctx, mapKey)
	if err == nil {
		return string(existing), nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return "", fmt.Errorf("packstore: load bucket mapping: %w", err)
	}

	const maxAttempts = 1000
	candidate := logicalBucket
	for attempt := 2; ; attempt++ {
		inUse, err := taken(candidate)
		if err != nil {
			return "", fmt.Errorf("packstore: check bucket %q: %w", candidate, err)
		}
		if !inUse {
			break
		}
		if attempt > maxAttempts {
			return "", fmt.Errorf("%w: could not find a free name for %q after %d attempts", errs.ErrCollision, logicalBucket, maxAttempts)
		}
		candidate = fmt.Sprintf("%s-%d", logicalBucket, attempt)
	}

	if err := kv.Put(ctx, mapKey, []byte(candidate)); err != nil {
		return "", fmt.Errorf("packstore: persist bucket mapping: %w", err)
	}
	return candidate, nil
}
