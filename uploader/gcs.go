package uploader

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBucket stores objects in a Google Cloud Storage bucket
type GCSBucket struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	chunkSize int
}

// NewGCSBucket creates a storage client for cfg.Bucket. With UseGRPC the
// client runs over a gRPC connection pool of GRPCPoolSize connections.
func NewGCSBucket(ctx context.Context, cfg Config) (*GCSBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var (
		client *storage.Client
		err    error
	)
	if cfg.UseGRPC {
		opts = append(opts, option.WithGRPCConnectionPool(cfg.GRPCPoolSize))
		client, err = storage.NewGRPCClient(ctx, opts...)
	} else {
		client, err = storage.NewClient(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSBucket{
		client:    client,
		bucket:    client.Bucket(cfg.Bucket),
		chunkSize: cfg.ChunkSize,
	}, nil
}

func (b *GCSBucket) Write(ctx context.Context, object string, data []byte) error {
	w := b.bucket.Object(object).NewWriter(ctx)
	w.ChunkSize = b.chunkSize
	w.ContentType = "application/octet-stream"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write error: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close error: %w", err)
	}
	return nil
}

func (b *GCSBucket) Compose(ctx context.Context, dst string, sources []string) error {
	if len(sources) == 0 {
		return fmt.Errorf("no chunks to compose")
	}

	handles := make([]*storage.ObjectHandle, len(sources))
	for i, src := range sources {
		handles[i] = b.bucket.Object(src)
	}

	// GCS atomically combines all sources in order
	composer := b.bucket.Object(dst).ComposerFrom(handles...)
	composer.ContentType = "application/octet-stream"
	if _, err := composer.Run(ctx); err != nil {
		return fmt.Errorf("compose failed: %w", err)
	}
	return nil
}

func (b *GCSBucket) Size(ctx context.Context, object string) (int64, error) {
	attrs, err := b.bucket.Object(object).Attrs(ctx)
	if err != nil {
		return 0, mapNotExist(object, err)
	}
	return attrs.Size, nil
}

func (b *GCSBucket) Delete(ctx context.Context, object string) error {
	if err := b.bucket.Object(object).Delete(ctx); err != nil {
		return mapNotExist(object, err)
	}
	return nil
}

func (b *GCSBucket) Close() error {
	return b.client.Close()
}

func mapNotExist(object string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s: %w", object, ErrObjectNotExist)
	}
	return err
}
