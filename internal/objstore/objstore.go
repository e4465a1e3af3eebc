// Package objstore issues presigned URLs for attachment blobs held in an
// S3-compatible store. The API never proxies object bytes; clients upload
// and download directly against the store.
package objstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/atriumhq/atrium/internal/config"
)

// Store presigns object operations for a single bucket.
type Store interface {
	PresignUpload(ctx context.Context, key string, expiry time.Duration) (string, error)
	PresignDownload(ctx context.Context, key, fileName string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// Key builds the canonical object key for an attachment.
func Key(tenantID, attachmentID, fileName string) string {
	return fmt.Sprintf("tenants/%s/attachments/%s/%s", tenantID, attachmentID, fileName)
}

// MinioStore implements Store on a MinIO / S3 endpoint.
type MinioStore struct {
	client *minio.Client
	bucket string
}

var _ Store = (*MinioStore)(nil)

// NewMinio connects to the configured endpoint.
func NewMinio(cfg config.ObjectStoreConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// PresignUpload returns a URL the caller can PUT the object bytes to.
func (s *MinioStore) PresignUpload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	return u.String(), nil
}

// PresignDownload returns a URL that serves the object with a download
// disposition carrying the original file name.
func (s *MinioStore) PresignDownload(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	params := url.Values{}
	if fileName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return u.String(), nil
}

// Remove deletes the object. Missing objects are not an error.
func (s *MinioStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
