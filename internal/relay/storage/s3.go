package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/uprelay/uprelay/internal/common/config"
	"github.com/uprelay/uprelay/internal/common/errors"
	"github.com/uprelay/uprelay/internal/common/logger"
)

// S3Backend implements Backend against an S3-compatible object store
// (AWS S3, MinIO, R2).
type S3Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	// Base endpoint for path-style public URLs; empty for AWS itself.
	endpoint string
	region   string
	logger   *zap.Logger

	// Bucket provisioning is checked once and cached; the flag is cleared
	// when a backend call fails so the next request re-checks.
	mu          sync.Mutex
	provisioned bool
}

var _ Backend = (*S3Backend)(nil)

// NewS3Backend creates a new S3Backend from configuration. Credentials are
// not validated here; a misconfigured backend surfaces on the first call,
// not at process start.
func NewS3Backend(ctx context.Context, cfg *config.S3Config) (*S3Backend, error) {
	log := logger.WithComponent("S3Backend")

	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		log.Warn("missing object store credentials, backend calls will fail",
			zap.String("endpoint", cfg.Endpoint),
			zap.String("bucket", cfg.Bucket),
		)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, errors.E("storage.NewS3Backend", errors.ErrBackendUnavailable, err)
	}

	// Custom endpoint for S3-compatible stores
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// MinIO and friends only route path-style requests.
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &S3Backend{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		region:   cfg.Region,
		logger:   log,
	}, nil
}

// Put stores an object. An existing key fails with ErrKeyConflict.
func (b *S3Backend) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if err := b.ensureProvisioned(ctx); err != nil {
		return err
	}

	exists, err := b.exists(ctx, key)
	if err != nil {
		b.markFailed()
		return errors.E("S3Backend.Put", errors.ErrBackendUnavailable, err)
	}
	if exists {
		return errors.E("S3Backend.Put", errors.ErrKeyConflict, nil, key)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		b.markFailed()
		return errors.E("S3Backend.Put", errors.ErrUploadFailed, err, key)
	}

	return nil
}

// List returns one page of entries directly under prefix using delimited
// listing; common prefixes become directory entries.
func (b *S3Backend) List(ctx context.Context, prefix, token string, limit int) (*Page, error) {
	if err := b.ensureProvisioned(ctx); err != nil {
		return nil, err
	}

	norm := normalizePrefix(prefix)
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(norm),
		Delimiter: aws.String("/"),
	}
	if limit > 0 {
		input.MaxKeys = aws.Int32(int32(limit))
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		b.markFailed()
		return nil, errors.E("S3Backend.List", errors.ErrListFailed, err, prefix)
	}

	page := &Page{}
	for _, cp := range out.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), norm), "/")
		if name == "" {
			continue
		}
		page.Entries = append(page.Entries, Entry{Name: name, IsDir: true})
	}
	for _, obj := range out.Contents {
		name := strings.TrimPrefix(aws.ToString(obj.Key), norm)
		// Zero-byte placeholder objects some clients create for "folders"
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		page.Entries = append(page.Entries, Entry{
			Name:    name,
			Size:    aws.ToInt64(obj.Size),
			ModTime: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}

	return page, nil
}

// PublicURL returns the public URL of a key. The bucket is provisioned
// public, so the URL serves without credentials.
func (b *S3Backend) PublicURL(key string) string {
	if b.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", b.endpoint, b.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucket, b.region, key)
}

// SignedURL returns a presigned GET URL that forces a download under
// downloadName. A missing object returns ErrNotFound.
func (b *S3Backend) SignedURL(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error) {
	exists, err := b.exists(ctx, key)
	if err != nil {
		b.markFailed()
		return "", errors.E("S3Backend.SignedURL", errors.ErrBackendUnavailable, err)
	}
	if !exists {
		return "", errors.E("S3Backend.SignedURL", errors.ErrNotFound, nil, key)
	}

	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		ResponseContentDisposition: aws.String(
			fmt.Sprintf("attachment; filename=%q", downloadName)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", errors.E("S3Backend.SignedURL", errors.ErrBackendUnavailable, err)
	}

	return req.URL, nil
}

// Close closes the backend.
func (b *S3Backend) Close() error {
	return nil
}

// exists checks whether a key is present via HeadObject.
func (b *S3Backend) exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if stderrors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ensureProvisioned makes sure the backing bucket exists and is public.
// The result is cached process-wide; markFailed clears it so the next
// request re-checks after an observed failure.
func (b *S3Backend) ensureProvisioned(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.provisioned {
		return nil
	}

	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		var notFound *types.NotFound
		if !stderrors.As(err, &notFound) {
			return errors.E("S3Backend.ensureProvisioned", errors.ErrBackendUnavailable, err)
		}

		_, err = b.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(b.bucket),
		})
		if err != nil {
			var owned *types.BucketAlreadyOwnedByYou
			var taken *types.BucketAlreadyExists
			if !stderrors.As(err, &owned) && !stderrors.As(err, &taken) {
				return errors.E("S3Backend.ensureProvisioned", errors.ErrBackendUnavailable, err)
			}
		} else {
			b.logger.Info("created bucket", zap.String("bucket", b.bucket))
		}
	}

	// Listing URLs are handed straight to clients, so the bucket must be
	// readable without credentials.
	_, err = b.client.PutBucketAcl(ctx, &s3.PutBucketAclInput{
		Bucket: aws.String(b.bucket),
		ACL:    types.BucketCannedACLPublicRead,
	})
	if err != nil {
		return errors.E("S3Backend.ensureProvisioned", errors.ErrBackendUnavailable, err)
	}

	b.provisioned = true
	return nil
}

// markFailed clears the cached provisioning state.
func (b *S3Backend) markFailed() {
	b.mu.Lock()
	b.provisioned = false
	b.mu.Unlock()
}

// normalizePrefix ensures a non-empty prefix carries a trailing slash so
// delimited listing descends exactly one level.
func normalizePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return strings.TrimSuffix(prefix, "/") + "/"
}
