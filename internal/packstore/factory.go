package packstore

import (
	"context"
	"fmt"

	"coldpack/internal/model"
)

// Open builds the PackStore adapter named by store.Type, configured from
// store.Properties. Property keys are adapter-specific (read per case
// below) so a Store record stays a flat string map across every backend.
func Open(ctx context.Context, store model.Store) (PackStore, error) {
	switch store.Type {
	case model.StoreLocal:
		root, ok := store.Properties["root"]
		if !ok {
			return nil, fmt.Errorf("packstore: store %s: LOCAL requires a %q property", store.ID, "root")
		}
		return NewLocal(root), nil

	case model.StoreAmazon:
		return NewS3(ctx, S3Options{
			Region:    store.Properties["region"],
			Endpoint:  store.Properties["endpoint"],
			AccessKey: store.Properties["access_key"],
			SecretKey: store.Properties["secret_key"],
		})

	case model.StoreMinio:
		endpoint, ok := store.Properties["endpoint"]
		if !ok {
			return nil, fmt.Errorf("packstore: store %s: MINIO requires an %q property", store.ID, "endpoint")
		}
		return NewS3(ctx, S3Options{
			Region:       store.Properties["region"],
			Endpoint:     endpoint,
			AccessKey:    store.Properties["access_key"],
			SecretKey:    store.Properties["secret_key"],
			UsePathStyle: true,
		})

	case model.StoreAzure:
		connStr, ok := store.Properties["connection_string"]
		if !ok {
			return nil, fmt.Errorf("packstore: store %s: AZURE requires a %q property", store.ID, "connection_string")
		}
		return NewAzure(connStr)

	case model.StoreGoogle:
		return NewGCS(ctx)

	case model.StoreSFTP:
		return NewSFTP(SFTPOptions{
			Addr:     store.Properties["addr"],
			User:     store.Properties["user"],
			Password: store.Properties["password"],
			Root:     store.Properties["root"],
		})

	default:
		return nil, fmt.Errorf("packstore: store %s: unknown type %q", store.ID, store.Type)
	}
}
