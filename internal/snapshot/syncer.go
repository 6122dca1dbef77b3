// Package snapshot derives the read-optimized projection of all published
// club records and keeps it consistent with the authoritative store.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"clubatlas/pkg/domain"
)

// Entry is one published record reshaped for read consumers. Coordinates are
// stored in (longitude, latitude) order. Both description fields are always
// present, passed through directly with no truncation fallback.
type Entry struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	University       string     `json:"university"`
	Province         string     `json:"province"`
	City             string     `json:"city,omitempty"`
	Coordinates      [2]float64 `json:"coordinates"`
	ShortDescription string     `json:"short_description"`
	LongDescription  string     `json:"long_description"`
	Tags             []string   `json:"tags,omitempty"`
	MediaPath        string     `json:"media_path,omitempty"`
	Links            []string   `json:"links,omitempty"`
	Contact          string     `json:"contact,omitempty"`
	Created          string     `json:"created"`
	Updated          string     `json:"updated"`
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Project reshapes a published record into its snapshot entry.
func Project(rec domain.ClubRecord) Entry {
	p := rec.Payload
	return Entry{
		ID:               rec.ID,
		Name:             p.Name,
		University:       p.University,
		Province:         p.Province,
		City:             p.City,
		Coordinates:      [2]float64{p.Longitude, p.Latitude},
		ShortDescription: p.ShortDescription,
		LongDescription:  p.LongDescription,
		Tags:             p.Tags,
		MediaPath:        p.MediaPath,
		Links:            p.Links,
		Contact:          p.Contact,
		Created:          rec.CreatedAt.UTC().Format(timeLayout),
		Updated:          rec.UpdatedAt.UTC().Format(timeLayout),
	}
}

// Syncer rebuilds the snapshot file from the authoritative store. Rebuilds
// are full projections, never deltas, so concurrent invocations are safe to
// interleave: each performs its own backup and atomic replace and the end
// state is whichever replace landed last.
type Syncer struct {
	store      domain.PersistentStore
	path       string
	backupPath string
	logger     *slog.Logger

	mu        sync.Mutex
	listeners []func()
}

// NewSyncer constructs a syncer writing to path. The previous snapshot is
// preserved at backupPath before each replacement; when backupPath is empty
// it defaults to path + ".bak".
func NewSyncer(store domain.PersistentStore, path, backupPath string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if backupPath == "" {
		backupPath = path + ".bak"
	}
	return &Syncer{
		store:      store,
		path:       path,
		backupPath: backupPath,
		logger:     logger.With("component", "snapshot_syncer"),
	}
}

// Path returns the snapshot file path.
func (s *Syncer) Path() string { return s.path }

// Subscribe registers a callback invoked after every successful rebuild.
// Readers use it to invalidate their cached snapshot handle.
func (s *Syncer) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Rebuild regenerates the snapshot wholesale from the current set of
// published records. Output is deterministic: two rebuilds with no
// intervening change produce byte-for-byte identical files.
func (s *Syncer) Rebuild(ctx context.Context) error {
	var records []domain.ClubRecord
	if err := s.store.View(ctx, func(view domain.TransactionView) error {
		records = view.ListClubRecords()
		return nil
	}); err != nil {
		return fmt.Errorf("read published records: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, Project(rec))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := s.replace(data); err != nil {
		return err
	}
	s.logger.Info("snapshot rebuilt", "entries", len(entries), "path", s.path)

	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	return nil
}

// replace backs up the existing snapshot to the fixed backup path, then
// writes the new content via temp file + rename so readers never observe a
// partial snapshot.
func (s *Syncer) replace(data []byte) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	existing, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := os.WriteFile(s.backupPath, existing, 0o644); err != nil {
			return fmt.Errorf("back up snapshot: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// first rebuild, nothing to back up
	default:
		return fmt.Errorf("read existing snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
