package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Reader is an explicit cached-snapshot handle for read consumers. The cache
// is populated on first Load and invalidated by the rebuilt event from the
// Syncer, not by implicit lazy re-population.
type Reader struct {
	path string

	mu      sync.RWMutex
	entries []Entry
	loaded  bool
}

// NewReader constructs a reader over the snapshot file at path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// AttachTo subscribes the reader's invalidation to the syncer's rebuilt event.
func (r *Reader) AttachTo(s *Syncer) {
	s.Subscribe(r.Invalidate)
}

// Invalidate drops the cached entries; the next Load re-reads the file.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.entries = nil
	r.mu.Unlock()
}

// Load returns the snapshot entries, reading the file only when the cache is
// cold or has been invalidated.
func (r *Reader) Load() ([]Entry, error) {
	r.mu.RLock()
	if r.loaded {
		entries := r.entries
		r.mu.RUnlock()
		return entries, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r.entries, nil
	}
	entries, err := ReadFile(r.path)
	if err != nil {
		return nil, err
	}
	r.entries = entries
	r.loaded = true
	return entries, nil
}

// ReadFile parses a snapshot file into its entries.
func ReadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return entries, nil
}
