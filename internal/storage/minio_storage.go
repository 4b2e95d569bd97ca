package storage

import (
	"context"
	"fmt"
	"io"
	"log"

	"schedle/internal/blob"
	"schedle/internal/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioAvatarStore uploads avatars to an S3 compatible bucket.
type MinioAvatarStore struct {
	client *minio.Client
	bucket string
}

// NewMinioAvatarStore connects to MinIO and creates the bucket when it does not exist.
func NewMinioAvatarStore(ctx context.Context, cfg config.MinioConfig) (*MinioAvatarStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	log.Printf("Connected to MinIO at %s, bucket %s", cfg.Endpoint, cfg.BucketName)
	return &MinioAvatarStore{client: client, bucket: cfg.BucketName}, nil
}

// Upload stores the object under avatars/<uuid><ext>.
func (m *MinioAvatarStore) Upload(ctx context.Context, reader io.Reader, fileSize int64, fileName string, mimeType string) (*blob.FileInfo, error) {
	objectName := "avatars/" + uuid.New().String() + extensionFor(fileName, mimeType)
	info, err := m.client.PutObject(ctx, m.bucket, objectName, reader, fileSize, minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	endpoint := m.client.EndpointURL()
	return &blob.FileInfo{
		URL:      fmt.Sprintf("%s://%s/%s/%s", endpoint.Scheme, endpoint.Host, m.bucket, objectName),
		Path:     objectName,
		Size:     info.Size,
		MimeType: mimeType,
		FileName: fileName,
	}, nil
}
