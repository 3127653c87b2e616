package assets

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/satindergrewal/segue/internal/logger"
)

// MinioConfig holds the object-store connection settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// MinioFetcher reads s3://bucket/key asset paths.
type MinioFetcher struct {
	client *minio.Client
}

// NewMinioFetcher creates the client and checks the endpoint answers.
func NewMinioFetcher(ctx context.Context, cfg MinioConfig) (*MinioFetcher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(ctx); err != nil {
		return nil, fmt.Errorf("minio %s unreachable: %w", cfg.Endpoint, err)
	}
	logger.Info("minio asset source ready", logger.String("endpoint", cfg.Endpoint))
	return &MinioFetcher{client: client}, nil
}

func (m *MinioFetcher) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key, err := ParseObjectPath(path)
	if err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	// GetObject is lazy; Stat surfaces NoSuchKey before the decoder reads.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

// ParseObjectPath splits s3://bucket/key.
func ParseObjectPath(path string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%q is not an s3:// path", path)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%q needs both bucket and key", path)
	}
	return bucket, key, nil
}
