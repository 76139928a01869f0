package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const defaultMultipartThreshold = 100 << 20

// S3Options configures an S3Store
type S3Options struct {
	Bucket             string
	Region             string
	Endpoint           string // set for MinIO or other S3-compatible services
	AccessKey          string
	SecretKey          string
	UsePathStyle       bool
	MultipartThreshold int64
}

// S3API is the subset of the S3 client used by S3Store
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store implements ObjectStore on S3 or an S3-compatible service
type S3Store struct {
	client             S3API
	uploader           *manager.Uploader
	bucket             *string
	multipartThreshold int64
}

// NewS3Store connects to the bucket and checks that it exists
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.Region = opts.Region
		o.UsePathStyle = opts.UsePathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	bucket := aws.String(opts.Bucket)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: bucket}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return nil, fmt.Errorf("bucket '%s' does not exist", opts.Bucket)
		}
		return nil, fmt.Errorf("failed to check if bucket exists, %w", err)
	}

	store := NewS3StoreWithClient(client, opts.Bucket, opts.MultipartThreshold)
	store.uploader = manager.NewUploader(client, func(u *manager.Uploader) {
		u.Concurrency = 5
		u.PartSize = 5 << 20
	})
	return store, nil
}

// NewS3StoreWithClient wraps an existing client. Multipart uploads are disabled
// unless the client is a *s3.Client.
func NewS3StoreWithClient(client S3API, bucket string, multipartThreshold int64) *S3Store {
	if multipartThreshold <= 0 {
		multipartThreshold = defaultMultipartThreshold
	}
	return &S3Store{
		client:             client,
		bucket:             aws.String(bucket),
		multipartThreshold: multipartThreshold,
	}
}

// Put uploads the object, switching to multipart above the threshold
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:      s.bucket,
		Key:         aws.String(cleaned),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if s.uploader != nil && (size < 0 || size > s.multipartThreshold) {
		_, err = s.uploader.Upload(ctx, input)
	} else {
		_, err = s.client.PutObject(ctx, input)
	}
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3, %w", cleaned, err)
	}
	return nil
}

// Get downloads the object body. The caller must close it.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: s.bucket,
		Key:    aws.String(cleaned),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, cleaned)
		}
		return nil, fmt.Errorf("failed to fetch %s from s3, %w", cleaned, err)
	}
	return out.Body, nil
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: s.bucket,
		Key:    aws.String(cleaned),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete %s from s3, %w", cleaned, err)
	}
	return nil
}

// DeletePrefix lists every key under prefix/ and deletes them in batches
func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	cleaned, err := CleanKey(prefix)
	if err != nil {
		return err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: s.bucket,
		Prefix: aws.String(cleaned + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list %s in s3, %w", cleaned, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: s.bucket,
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete %s from s3, %w", cleaned, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
