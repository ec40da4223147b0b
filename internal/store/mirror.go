package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioMirror mirrors artifacts to an S3-compatible bucket.
type MinioMirror struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// MinioConfig holds mirror connection settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioMirror connects to the object store and ensures the bucket exists.
func NewMinioMirror(cfg MinioConfig) (*MinioMirror, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("mirror credentials not configured")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mirror client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, existsErr := cli.BucketExists(ctx, cfg.Bucket)
		if existsErr != nil || !exists {
			return nil, fmt.Errorf("failed to create/verify bucket %s: %w", cfg.Bucket, err)
		}
	}

	logger := slog.Default().With("component", "artifact_mirror")
	logger.Info("Artifact mirror connected", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)

	return &MinioMirror{
		client: cli,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// Upload stores one artifact in the bucket.
func (m *MinioMirror) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := m.client.PutObject(ctx, m.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}

	m.logger.Debug("Artifact mirrored", "artifact", name, "bytes", len(data))
	return nil
}
