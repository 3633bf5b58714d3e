// Package blobstore abstracts the object storage used for raw scan images
// and composited renders. Backends exist for Azure Blob Storage, S3, GCS,
// the local filesystem, and memory.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

var (
	// ErrNotFound indicates the blob does not exist.
	ErrNotFound = errors.New("blob not found")

	// ErrAlreadyExists indicates a non-overwriting put hit an existing blob.
	ErrAlreadyExists = errors.New("blob already exists")
)

// Store is a flat container/name blob store.
type Store interface {
	// Put stores data. With overwrite false an existing blob is left
	// untouched and ErrAlreadyExists is returned.
	Put(ctx context.Context, container, name string, data []byte, overwrite bool) error
	Get(ctx context.Context, container, name string) ([]byte, error)
	Close() error
}

// Open creates a Store from a URL:
//
//	mem://                                  in-memory (tests)
//	file:///var/lib/orbit/blobs             local directory tree
//	azblob://[account]                      Azure; connection string from the
//	                                        connection_string query parameter
//	                                        or AZURE_STORAGE_CONNECTION_STRING
//	s3://[bucket]?region=&endpoint=         S3; empty bucket maps containers
//	                                        to buckets
//	gs://[bucket]                           GCS; same container mapping
func Open(ctx context.Context, rawURL string, logger *slog.Logger) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse blob url: %w", err)
	}
	switch u.Scheme {
	case "mem":
		return NewMemory(), nil
	case "file":
		path := u.Path
		if u.Host != "" {
			path = u.Host + path
		}
		if path == "" {
			return nil, errors.New("file blob url needs a path")
		}
		return NewFS(path)
	case "azblob":
		conn := u.Query().Get("connection_string")
		return NewAzure(conn, logger)
	case "s3":
		q := u.Query()
		return NewS3(ctx, S3Config{
			Bucket:    u.Host,
			Region:    q.Get("region"),
			Endpoint:  q.Get("endpoint"),
			AccessKey: q.Get("access_key"),
			SecretKey: q.Get("secret_key"),
		}, logger)
	case "gs":
		return NewGCS(ctx, u.Host, logger)
	default:
		return nil, fmt.Errorf("unknown blob scheme %q", u.Scheme)
	}
}

// key joins container and name for backends without native containers.
func key(container, name string) string {
	return strings.TrimSuffix(container, "/") + "/" + name
}
