package docsource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dvloznov/costpilot/internal/config"
)

// ObjectReader reads objects from a bucket store.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string, limit int64) ([]byte, error)
	Close() error
}

// GCSReader reads objects from Google Cloud Storage.
type GCSReader struct {
	client *storage.Client
}

// NewGCSReader creates a storage client. Credentials come from the
// configured file or Application Default Credentials; a custom endpoint
// (e.g. an emulator) disables authentication.
func NewGCSReader(ctx context.Context, cfg config.StorageConfig) (*GCSReader, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSReader{client: client}, nil
}

// ReadObject downloads at most limit bytes of an object.
func (r *GCSReader) ReadObject(ctx context.Context, bucket, object string, limit int64) ([]byte, error) {
	rd, err := r.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer rd.Close()

	if limit > 0 && rd.Attrs.Size > limit {
		return nil, fmt.Errorf("%w: gs://%s/%s is %d bytes", ErrTooLarge, bucket, object, rd.Attrs.Size)
	}

	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

// Close releases the storage client.
func (r *GCSReader) Close() error {
	return r.client.Close()
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
