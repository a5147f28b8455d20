// Package storage mirrors archived vault files into S3-compatible object
// storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/framelight/deckhand/pkg/config"
)

// ObjectStore persists archived files under stable keys.
type ObjectStore interface {
	// Upload streams body to the keyed object and returns its location URL.
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	// Delete removes the keyed object.
	Delete(ctx context.Context, key string) error
}

// S3Store implements ObjectStore against S3 or any S3-compatible endpoint.
type S3Store struct {
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
	client   *s3.S3
}

// NewS3Store builds a store from cfg. Credentials come from the standard
// AWS chain (environment, shared config, instance role).
func NewS3Store(cfg config.StorageConfig) (*S3Store, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("object storage is not configured (bucket is empty)")
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		// S3-compatible endpoints (MinIO and friends) need path-style keys.
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}

	return &S3Store{
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		uploader: s3manager.NewUploader(sess),
		client:   s3.New(sess),
	}, nil
}

// Upload streams body to the keyed object and returns its location URL.
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return out.Location, nil
}

// Delete removes the keyed object. S3 treats absent keys as deleted, so
// Delete is idempotent.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// ContentTypeFor maps a file name to its MIME type, defaulting to
// application/octet-stream for unknown extensions.
func ContentTypeFor(fileName string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); t != "" {
		return t
	}
	return "application/octet-stream"
}
