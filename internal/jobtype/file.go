package jobtype

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"orbit/internal/logging"
)

// File is a Source backed by a JSON file holding an array of types. Watch
// reloads the file whenever it changes on disk.
type File struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	types map[key]Type
}

// NewFile loads the type table from path.
func NewFile(path string, logger *slog.Logger) (*File, error) {
	f := &File{
		path:   path,
		logger: logging.Default(logger).With("component", "jobtype-file"),
	}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read job type file: %w", err)
	}
	var types []Type
	if err := json.Unmarshal(data, &types); err != nil {
		return fmt.Errorf("parse job type file %s: %w", f.path, err)
	}
	m := make(map[key]Type, len(types))
	for _, t := range types {
		m[key{t.Vendor, t.JobType}] = t
	}
	f.mu.Lock()
	f.types = m
	f.mu.Unlock()
	return nil
}

func (f *File) Lookup(_ context.Context, vendor, jobType string) (*Type, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.types[key{vendor, jobType}]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// Watch blocks until ctx is done, reloading the table when the file
// changes. A reload failure keeps the previous table.
func (f *File) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files rather than write in place.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", f.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := f.reload(); err != nil {
				f.logger.Warn("job type reload failed", "error", err)
				continue
			}
			f.logger.Info("job type table reloaded", "path", f.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("job type watcher error", "error", err)
		}
	}
}
