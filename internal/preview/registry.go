// Package preview keeps the revocable preview resources behind upload
// handles and streams them back to the page that acquired them.
package preview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/heimdex/heimdex-edit/internal/upload"
)

// URLPrefix is the path previews are served under.
const URLPrefix = "/preview/"

// Entry is a live preview.
type Entry struct {
	ID        string
	Name      string
	MediaType string
	Size      int64
	Path      string
	CreatedAt time.Time
}

// Registry stores previews as files in one directory.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
}

var _ upload.PreviewStore = (*Registry)(nil)

func NewRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preview dir: %w", err)
	}
	return &Registry{
		dir:     dir,
		logger:  logger,
		entries: make(map[string]*Entry),
	}, nil
}

// Acquire copies the candidate's bytes into the registry and returns a
// handle for them.
func (r *Registry) Acquire(ctx context.Context, c upload.Candidate) (upload.Handle, error) {
	if err := ctx.Err(); err != nil {
		return upload.Handle{}, err
	}

	src, err := c.Open()
	if err != nil {
		return upload.Handle{}, fmt.Errorf("failed to open candidate: %w", err)
	}
	defer src.Close()

	id := uuid.NewString()
	path := filepath.Join(r.dir, id)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return upload.Handle{}, fmt.Errorf("failed to create preview file: %w", err)
	}

	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return upload.Handle{}, fmt.Errorf("failed to write preview: %w", err)
	}

	entry := &Entry{
		ID:        id,
		Name:      c.Name(),
		MediaType: c.MediaType(),
		Size:      written,
		Path:      path,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.entries[id] = entry
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Debug("preview acquired", "preview_id", id, "name", entry.Name, "size", humanize.IBytes(uint64(written)))
	}

	return upload.Handle{ID: id, URL: URLPrefix + id}, nil
}

// Release revokes a handle and deletes its bytes. Unknown handles are
// ignored.
func (r *Registry) Release(h upload.Handle) error {
	r.mu.Lock()
	entry, ok := r.entries[h.ID]
	if ok {
		delete(r.entries, h.ID)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove preview %s: %w", h.ID, err)
	}

	if r.logger != nil {
		r.logger.Debug("preview released", "preview_id", h.ID)
	}
	return nil
}

// Lookup returns the live entry for id.
func (r *Registry) Lookup(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Active returns the number of unreleased previews.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Purge deletes files in the preview directory that no live handle refers
// to, such as leftovers from a previous process.
func (r *Registry) Purge() (int, error) {
	dirEntries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read preview dir: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	removed := 0
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if _, live := r.entries[de.Name()]; live {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, de.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Close releases every live preview.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
