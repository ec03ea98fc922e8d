package packstore

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"coldpack/internal/errs"
)

// Azure implements PackStore against Azure Blob Storage: bucket maps to a
// container, object maps to a blob name within it.
type Azure struct {
	client *azblob.Client
}

// NewAzure builds an Azure-backed PackStore from a storage account's
// connection string (the form Azure's own portal and CLI hand out, and
// the simplest credential shape to carry in a Store's Properties map).
func NewAzure(connectionString string) (*Azure, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("packstore(azure): new client: %w", err)
	}
	return &Azure{client: client}, nil
}

func (a *Azure) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := a.client.CreateContainer(ctx, bucket, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		return fmt.Errorf("packstore(azure): create container %s: %w", bucket, err)
	}
	return nil
}

func (a *Azure) Put(ctx context.Context, bucket, key string, data io.Reader, _ int64) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("packstore(azure): read body for %s/%s: %w", bucket, key, err)
	}
	_, err = a.client.UploadBuffer(ctx, bucket, key, buf, nil)
	if err != nil {
		return fmt.Errorf("packstore(azure): upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (a *Azure) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, bucket, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("packstore(azure): %s/%s: %w", bucket, key, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("packstore(azure): download %s/%s: %w", bucket, key, err)
	}
	return resp.Body, nil
}

func (a *Azure) List(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	pager := a.client.NewListBlobsFlatPager(bucket, &azblob.ListBlobsFlatOptions{})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("packstore(azure): list %s: %w", bucket, err)
		}
		for _, item := range page.Segment.BlobItems {
			info := ObjectInfo{Key: *item.Name}
			if item.Properties != nil && item.Properties.ContentLength != nil {
				info.Size = *item.Properties.ContentLength
			}
			if item.Properties != nil && item.Properties.ContentMD5 != nil {
				info.ETag = fmt.Sprintf("%x", item.Properties.ContentMD5)
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func (a *Azure) Delete(ctx context.Context, bucket, key string) error {
	_, err := a.client.DeleteBlob(ctx, bucket, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return fmt.Errorf("packstore(azure): delete %s/%s: %w", bucket, key, err)
	}
	return nil
}
