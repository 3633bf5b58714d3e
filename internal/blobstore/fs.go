package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FS stores blobs as files under root/container/name.
type FS struct {
	root string
}

var _ Store = (*FS)(nil)

// NewFS creates a filesystem store rooted at dir.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FS{root: dir}, nil
}

func (f *FS) path(container, name string) string {
	return filepath.Join(f.root, container, filepath.FromSlash(name))
}

func (f *FS) Put(_ context.Context, container, name string, data []byte, overwrite bool) error {
	path := f.path(container, name)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return ErrAlreadyExists
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write blob %s/%s: %w", container, name, err)
	}
	return nil
}

func (f *FS) Get(_ context.Context, container, name string) ([]byte, error) {
	data, err := os.ReadFile(f.path(container, name))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s/%s: %w", container, name, err)
	}
	return data, nil
}

func (f *FS) Close() error { return nil }
