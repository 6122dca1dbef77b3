// Package intake implements the durable intake buffer: a write-ahead staging
// area for raw submissions that survives authoritative-store outages, plus the
// reconciliation sweep that replays unconsumed records into the store.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"clubatlas/internal/blob"
	"clubatlas/pkg/domain"
)

const (
	// PendingPrefix holds buffer records awaiting authoritative persistence.
	PendingPrefix = "intake/"
	// ArchivePrefix holds consumed buffer records kept for audit.
	ArchivePrefix = "archived/"

	contentTypeJSON = "application/json"
)

// BufferRecord is one self-contained intake attempt: everything needed to
// reconstruct the submission without the authoritative store.
type BufferRecord struct {
	Key         string                `json:"key"`
	Kind        domain.SubmissionKind `json:"kind"`
	TargetID    string                `json:"target_id,omitempty"`
	Payload     domain.ClubPayload    `json:"payload"`
	Origin      domain.OriginMeta     `json:"origin"`
	DupCheck    domain.DupCheckResult `json:"dup_check"`
	SubmittedAt time.Time             `json:"submitted_at"`
}

// Receipt confirms a durable buffer write.
type Receipt struct {
	Key      string    `json:"key"`
	ETag     string    `json:"etag,omitempty"`
	StoredAt time.Time `json:"stored_at"`
}

// Buffer stages intake records on a blob store. The underlying Put is
// create-only and atomic, so a receipt means the record is fully on disk.
type Buffer struct {
	store  blob.Store
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewBuffer constructs a buffer over the given blob store.
func NewBuffer(store blob.Store, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		store:  store,
		logger: logger.With("component", "intake_buffer"),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the time provider for deterministic tests.
func (b *Buffer) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		b.nowFn = fn
	}
}

// NewKey derives a collision-resistant buffer key from time plus a random
// component. Keys sort chronologically; the uuid makes concurrent intakes
// collision-free and the create-only Put backstops even that.
func NewKey(at time.Time) string {
	return fmt.Sprintf("%s%s-%s.json", PendingPrefix, at.UTC().Format("20060102T150405.000000000Z"), uuid.NewString())
}

// Persist writes one buffer record durably. It is the one write on the intake
// path that must never silently fail: an error here fails the whole request.
func (b *Buffer) Persist(ctx context.Context, rec BufferRecord) (Receipt, error) {
	now := b.nowFn()
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = now
	}
	if rec.Key == "" {
		rec.Key = NewKey(rec.SubmittedAt)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Receipt{}, fmt.Errorf("encode buffer record: %w", err)
	}
	info, err := b.store.Put(ctx, rec.Key, bytes.NewReader(data), blob.PutOptions{ContentType: contentTypeJSON})
	if err != nil {
		return Receipt{}, fmt.Errorf("persist buffer record %s: %w", rec.Key, err)
	}
	b.logger.Debug("buffer record persisted", "key", rec.Key, "size", info.Size)
	return Receipt{Key: rec.Key, ETag: info.ETag, StoredAt: now}, nil
}

// Load reads a buffer record back by key.
func (b *Buffer) Load(ctx context.Context, key string) (BufferRecord, error) {
	_, rc, err := b.store.Get(ctx, key)
	if err != nil {
		return BufferRecord{}, fmt.Errorf("load buffer record %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return BufferRecord{}, fmt.Errorf("read buffer record %s: %w", key, err)
	}
	var rec BufferRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return BufferRecord{}, fmt.Errorf("decode buffer record %s: %w", key, err)
	}
	if rec.Key == "" {
		rec.Key = key
	}
	return rec, nil
}

// ListPending returns the keys of unconsumed records older than the grace
// period, oldest first. Records younger than the grace period are likely
// still in flight on the live intake path and are left alone.
func (b *Buffer) ListPending(ctx context.Context, grace time.Duration) ([]string, error) {
	infos, err := b.store.List(ctx, PendingPrefix)
	if err != nil {
		return nil, fmt.Errorf("list buffer records: %w", err)
	}
	cutoff := b.nowFn().Add(-grace)
	var keys []string
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".meta") {
			continue
		}
		if info.LastModified.After(cutoff) {
			continue
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

// Consume archives a pending record. The create-only archive write doubles as
// the claim: when two sweeps race on the same key, exactly one Put succeeds
// and the loser returns false with no side effects.
func (b *Buffer) Consume(ctx context.Context, key string) (bool, error) {
	_, rc, err := b.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read buffer record %s: %w", key, err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return false, fmt.Errorf("read buffer record %s: %w", key, err)
	}
	archiveKey := ArchivePrefix + path.Base(key)
	if _, err := b.store.Put(ctx, archiveKey, bytes.NewReader(data), blob.PutOptions{ContentType: contentTypeJSON}); err != nil {
		if errors.Is(err, blob.ErrExists) {
			b.logger.Debug("buffer record already consumed", "key", key)
			return false, nil
		}
		return false, fmt.Errorf("archive buffer record %s: %w", key, err)
	}
	if _, err := b.store.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("remove consumed buffer record %s: %w", key, err)
	}
	return true, nil
}
