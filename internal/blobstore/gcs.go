package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"orbit/internal/logging"
)

// GCS stores blobs in Google Cloud Storage. With a fixed bucket,
// containers become object prefixes; otherwise each container is its
// own bucket.
type GCS struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

var _ Store = (*GCS)(nil)

// NewGCS connects using application default credentials.
func NewGCS(ctx context.Context, bucket string, logger *slog.Logger, opts ...option.ClientOption) (*GCS, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCS{
		client: client,
		bucket: bucket,
		logger: logging.Default(logger).With("component", "blobstore-gcs"),
	}, nil
}

func (g *GCS) locate(container, name string) (bucket, objKey string) {
	if g.bucket != "" {
		return g.bucket, key(container, name)
	}
	return container, name
}

func (g *GCS) Put(ctx context.Context, container, name string, data []byte, overwrite bool) error {
	bucket, objKey := g.locate(container, name)
	obj := g.client.Bucket(bucket).Object(objKey)
	if !overwrite {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write object %s/%s: %w", bucket, objKey, err)
	}
	if err := w.Close(); err != nil {
		if !overwrite && isPreconditionFailed(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("write object %s/%s: %w", bucket, objKey, err)
	}
	g.logger.Debug("uploaded blob", "bucket", bucket, "key", objKey, "bytes", len(data))
	return nil
}

func (g *GCS) Get(ctx context.Context, container, name string) ([]byte, error) {
	bucket, objKey := g.locate(container, name)
	r, err := g.client.Bucket(bucket).Object(objKey).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s/%s: %w", bucket, objKey, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, objKey, err)
	}
	return data, nil
}

func (g *GCS) Close() error { return g.client.Close() }

// isPreconditionFailed detects a DoesNotExist condition rejection.
func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
