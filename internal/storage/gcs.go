package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// DefaultGCSBaseURL serves objects to authenticated browser sessions.
const DefaultGCSBaseURL = "https://storage.mtls.cloud.google.com"

type GCSBucket struct {
	client  *gcs.Client
	bucket  string
	baseURL string
}

func NewGCSBucket(ctx context.Context, bucket, baseURL string, opts ...option.ClientOption) (*GCSBucket, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	if baseURL == "" {
		baseURL = DefaultGCSBaseURL
	}
	return &GCSBucket{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (b *GCSBucket) Close() error { return b.client.Close() }

func (b *GCSBucket) Name() string          { return b.bucket }
func (b *GCSBucket) URI(key string) string { return "gs://" + b.bucket + "/" + key }

func (b *GCSBucket) Put(ctx context.Context, key string, body []byte, contentType string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write GCS object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

func (b *GCSBucket) Exists(ctx context.Context, key string) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	_, err = b.client.Bucket(b.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *GCSBucket) URL(_ context.Context, key string) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}
	return b.baseURL + "/" + b.bucket + "/" + key, nil
}
