// Package jobtype translates vendor-specific job type names into the
// generic robot operations the batch planner understands.
package jobtype

import (
	"context"
	"io"
	"sync"
)

// Type maps one (vendor, job_type) pair to a generic operation. Designated
// types are predetermined: they target a fixed item such as a conveyor
// endpoint, identified by ItemUUID.
type Type struct {
	Vendor        string `json:"vendor"`
	JobType       string `json:"job_type"`
	GenericType   string `json:"generic_type"`
	Predetermined bool   `json:"predetermined"`
	ItemUUID      string `json:"item_uuid,omitempty"`
}

// Source resolves job types. Lookup returns (nil, nil) when the pair is
// unknown; errors are reserved for source failures.
type Source interface {
	Lookup(ctx context.Context, vendor, jobType string) (*Type, error)
}

type key struct {
	vendor  string
	jobType string
}

// Static is a fixed in-memory Source.
type Static struct {
	types map[key]Type
}

// NewStatic builds a Source from a fixed list of types.
func NewStatic(types []Type) *Static {
	m := make(map[key]Type, len(types))
	for _, t := range types {
		m[key{t.Vendor, t.JobType}] = t
	}
	return &Static{types: m}
}

func (s *Static) Lookup(_ context.Context, vendor, jobType string) (*Type, error) {
	t, ok := s.types[key{vendor, jobType}]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// Catalog memoizes successful lookups from an underlying source. Misses are
// not cached, so a type added to the source later is picked up.
type Catalog struct {
	source Source

	mu    sync.RWMutex
	cache map[key]Type
}

// NewCatalog wraps a source with a memoizing cache.
func NewCatalog(source Source) *Catalog {
	return &Catalog{source: source, cache: make(map[key]Type)}
}

func (c *Catalog) Lookup(ctx context.Context, vendor, jobType string) (*Type, error) {
	k := key{vendor, jobType}
	c.mu.RLock()
	t, ok := c.cache[k]
	c.mu.RUnlock()
	if ok {
		return &t, nil
	}

	got, err := c.source.Lookup(ctx, vendor, jobType)
	if err != nil || got == nil {
		return got, err
	}
	c.mu.Lock()
	c.cache[k] = *got
	c.mu.Unlock()
	return got, nil
}

// Close closes the underlying source when it holds resources.
func (c *Catalog) Close() error {
	if closer, ok := c.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
