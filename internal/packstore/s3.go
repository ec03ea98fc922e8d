package packstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"coldpack/internal/errs"
)

// S3 implements PackStore against Amazon S3 or any S3-compatible endpoint
// (including MinIO, when Properties["endpoint"] is set and path-style
// addressing is forced on).
type S3 struct {
	client *s3.Client
}

// S3Options configures Amazon/MinIO connectivity, built from a model.Store's
// Properties map by the caller.
type S3Options struct {
	Region       string
	Endpoint     string // non-empty for MinIO or other S3-compatible services
	AccessKey    string
	SecretKey    string
	UsePathStyle bool // required by MinIO; Amazon S3 defaults to virtual-hosted style
}

// NewS3 builds an S3-backed PackStore. If opts.AccessKey is empty, the
// default AWS credential chain (environment, shared config, instance
// role) is used instead.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("packstore(s3): load config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3{client: client}, nil
}

func (s *S3) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var exists *s3types.BucketAlreadyOwnedByYou
		var inUse *s3types.BucketAlreadyExists
		if errors.As(err, &exists) || errors.As(err, &inUse) {
			return nil
		}
		return fmt.Errorf("packstore(s3): create bucket %s: %w", bucket, err)
	}
	return nil
}

func (s *S3) Put(ctx context.Context, bucket, key string, data io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          data,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("packstore(s3): put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("packstore(s3): %s/%s: %w", bucket, key, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("packstore(s3): get %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func (s *S3) List(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("packstore(s3): list %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.ETag != nil {
				info.ETag = aws.ToString(obj.ETag)
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *S3) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("packstore(s3): delete %s/%s: %w", bucket, key, err)
	}
	return nil
}
