package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStorage 保存到 MinIO bucket
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorage 连接 MinIO，bucket 不存在时创建
func NewMinIOStorage(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinIOStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinIOStorage{client: client, bucket: bucket}, nil
}

func (s *MinIOStorage) Save(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	handle := objectName(filename)
	_, err := s.client.PutObject(ctx, s.bucket, handle, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload drawing: %w", err)
	}
	return handle, nil
}

func (s *MinIOStorage) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	if !validHandle(handle) {
		return nil, ErrNotFound
	}
	if _, err := s.client.StatObject(ctx, s.bucket, handle, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat drawing: %w", err)
	}
	object, err := s.client.GetObject(ctx, s.bucket, handle, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get drawing: %w", err)
	}
	return object, nil
}

func (s *MinIOStorage) Remove(ctx context.Context, handle string) error {
	if !validHandle(handle) {
		return nil
	}
	return s.client.RemoveObject(ctx, s.bucket, handle, minio.RemoveObjectOptions{})
}

// URL 有效期 1 小时的预签名下载地址
func (s *MinIOStorage) URL(handle string) string {
	u, err := s.client.PresignedGetObject(context.Background(), s.bucket, handle, time.Hour, url.Values{})
	if err != nil {
		return ""
	}
	return u.String()
}
