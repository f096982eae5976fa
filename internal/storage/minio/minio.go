// Package minio provides the static key-pair bucket backend, speaking the
// S3 wire protocol through the MinIO client. Unlike the STS-style bucket
// backend, both writes and reads authenticate with the same long-lived
// access key pair.
package minio

import (
	"context"
	"fmt"
	"io"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yuhuotech/pixelhub/internal/storage/transport"
)

// Config holds endpoint and credential parameters.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Backend implements storage.Backend against a MinIO/S3-compatible bucket.
type Backend struct {
	client *miniogo.Client
	bucket string
}

// New creates a minio backend. Construction only validates the endpoint
// syntax; the first transport contact happens on Put/Open.
func New(cfg Config) (*Backend, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Backend{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads the object server-side using the static key pair. The client
// library handles its own transient retries.
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, body, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Open fetches the object with an authenticated GET.
func (b *Backend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	// GetObject is lazy; Stat forces the first round trip so a missing
	// object fails here instead of on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if resp := miniogo.ToErrorResponse(err); resp.StatusCode != 0 {
			return nil, fmt.Errorf("stat object %s: %w", key, &transport.StatusError{Status: resp.StatusCode})
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return obj, nil
}

// Type returns "minio".
func (b *Backend) Type() string { return "minio" }
