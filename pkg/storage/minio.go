package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/noah-isme/course-admin-api/pkg/config"
)

// MinIOStore keeps objects in a single S3 compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	region string
	logger *zap.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

// NewMinIOStore connects to MinIO. A bucket that cannot be ensured at boot is retried on demand.
func NewMinIOStore(cfg config.StorageConfig, logger *zap.Logger) (*MinIOStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	store := &MinIOStore{client: client, bucket: cfg.Bucket, region: cfg.Region, logger: logger}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := store.ensureBucket(ctx); err != nil {
		logger.Warn("minio bucket not ready at startup", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.Bucket), zap.Error(err))
	}

	return store, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.bucketEnsured {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		s.logger.Info("created bucket", zap.String("bucket", s.bucket))
	}
	s.bucketEnsured = true
	return nil
}

// Put uploads data under namespace and returns the object key.
func (s *MinIOStore) Put(ctx context.Context, namespace string, data []byte, contentType string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	key := objectKey(namespace, contentType)
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload object: %w", err)
	}
	s.logger.Debug("object stored", zap.String("key", key), zap.String("etag", info.ETag), zap.Int("size", len(data)))
	return key, nil
}

// Exists stats ref and reports whether the object is present.
func (s *MinIOStore) Exists(ctx context.Context, ref string) (bool, error) {
	key, err := cleanReference(ref)
	if err != nil {
		return false, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return false, err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isMissingObject(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

// Delete removes ref from the bucket; removing a missing key succeeds.
func (s *MinIOStore) Delete(ctx context.Context, ref string) error {
	key, err := cleanReference(ref)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func isMissingObject(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
