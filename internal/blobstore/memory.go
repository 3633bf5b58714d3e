package blobstore

import (
	"context"
	"sync"
)

// Memory is an in-memory Store for tests and single-process runs.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, container, name string, data []byte, overwrite bool) error {
	k := key(container, name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[k]; ok && !overwrite {
		return ErrAlreadyExists
	}
	m.blobs[k] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Get(_ context.Context, container, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key(container, name)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Close() error { return nil }
