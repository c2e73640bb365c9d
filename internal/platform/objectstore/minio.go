// Package objectstore implements the file storage collaborator on a
// MinIO/S3-compatible object store.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tovell/argus-api/internal/config"
	"github.com/tovell/argus-api/internal/filestore"
)

// MinioFileStore implements the filestore.FileStore interface backed by a
// MinIO bucket. Handles are object keys within the configured bucket.
type MinioFileStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// Ensure MinioFileStore implements filestore.FileStore
var _ filestore.FileStore = (*MinioFileStore)(nil)

// NewMinioFileStore connects to the object store and ensures the configured
// bucket exists.
func NewMinioFileStore(ctx context.Context, cfg config.ObjectStoreConfig, logger *slog.Logger) (*MinioFileStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("object store endpoint and bucket must be configured")
	}

	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &MinioFileStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With(slog.String("component", "object_store")),
	}, nil
}

// Put stores the payload under key and returns the key as the handle.
func (s *MinioFileStore) Put(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to store object %q: %w", key, err)
	}

	s.logger.Debug("stored object",
		slog.String("key", key),
		slog.Int("bytes", len(payload)))
	return key, nil
}

// Get retrieves the payload for a handle.
func (s *MinioFileStore) Get(ctx context.Context, handle string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, handle, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open object %q: %w", handle, err)
	}
	defer func() {
		if err := obj.Close(); err != nil {
			s.logger.Error("failed to close object reader",
				slog.String("handle", handle),
				slog.String("error", err.Error()))
		}
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, filestore.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to read object %q: %w", handle, err)
	}

	return data, nil
}

// Remove deletes the object for a handle. Missing objects are tolerated.
func (s *MinioFileStore) Remove(ctx context.Context, handle string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, handle, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %q: %w", handle, err)
	}
	return nil
}

// RemoveAll deletes every object stored under the given prefix.
func (s *MinioFileStore) RemoveAll(ctx context.Context, prefix string) error {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var firstErr error
	for obj := range objects {
		if obj.Err != nil {
			if firstErr == nil {
				firstErr = obj.Err
			}
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			s.logger.Error("failed to remove object",
				slog.String("key", obj.Key),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
