package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Bucket    string `toml:"bucket"`
	// Prefix is prepended to every key, e.g. "modules/".
	Prefix string `toml:"prefix"`
}

// MinIO reads artifacts from an S3 compatible bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIO{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (m *MinIO) object(key string) string {
	return path.Join(m.prefix, key)
}

func (m *MinIO) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, m.object(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, m.wrap(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxDecodedBytes+1))
	if err != nil {
		return nil, m.wrap(key, err)
	}
	if len(data) > maxDecodedBytes {
		return nil, fmt.Errorf("artifact %s exceeds %d bytes", key, maxDecodedBytes)
	}
	return Decompress(data)
}

// PutBytes uploads data under its content address.
func (m *MinIO) PutBytes(ctx context.Context, data []byte) (string, error) {
	key := Key(data)
	_, err := m.client.PutObject(ctx, m.bucket, m.object(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("minio put object %s: %w", key, err)
	}
	return key, nil
}

func (m *MinIO) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, m.object(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove object %s: %w", key, err)
	}
	return nil
}

func (m *MinIO) wrap(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("minio get object %s: %w", key, err)
}
