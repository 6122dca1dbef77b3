package intake

import (
	"context"
	"log/slog"
	"time"

	"clubatlas/pkg/domain"
)

// SweepStats summarizes one reconciliation pass.
type SweepStats struct {
	Scanned          int
	Replayed         int
	AlreadyPersisted int
	Consumed         int
	Failures         int
}

// Reconciler replays unconsumed buffer records into the authoritative store.
// It may run concurrently with live intake and with other sweeps: the buffer
// key on each submission is the dedup key, so re-persisting an already-present
// submission is detected and skipped rather than duplicated.
type Reconciler struct {
	buffer *Buffer
	store  domain.PersistentStore
	grace  time.Duration
	logger *slog.Logger
}

// NewReconciler constructs a sweep over the given buffer and store. Records
// younger than grace are skipped.
func NewReconciler(buffer *Buffer, store domain.PersistentStore, grace time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if grace <= 0 {
		grace = time.Minute
	}
	return &Reconciler{
		buffer: buffer,
		store:  store,
		grace:  grace,
		logger: logger.With("component", "reconciler"),
	}
}

// Sweep performs one reconciliation pass. Per-record failures are logged and
// counted, never fatal: the record stays buffered for the next pass.
func (r *Reconciler) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	keys, err := r.buffer.ListPending(ctx, r.grace)
	if err != nil {
		return stats, err
	}
	for _, key := range keys {
		stats.Scanned++
		if err := r.replay(ctx, key, &stats); err != nil {
			stats.Failures++
			r.logger.Warn("buffer record replay failed", "key", key, "error", err)
		}
	}
	if stats.Scanned > 0 {
		r.logger.Info("reconciliation sweep complete",
			"scanned", stats.Scanned,
			"replayed", stats.Replayed,
			"already_persisted", stats.AlreadyPersisted,
			"consumed", stats.Consumed,
			"failures", stats.Failures)
	}
	return stats, nil
}

func (r *Reconciler) replay(ctx context.Context, key string, stats *SweepStats) error {
	rec, err := r.buffer.Load(ctx, key)
	if err != nil {
		return err
	}
	replayed := false
	_, err = r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindSubmissionByBufferKey(key); ok {
			return nil
		}
		_, err := tx.CreateSubmission(domain.Submission{
			Kind:      rec.Kind,
			TargetID:  rec.TargetID,
			Payload:   rec.Payload,
			Origin:    rec.Origin,
			DupCheck:  rec.DupCheck,
			BufferKey: key,
		})
		if err != nil {
			return err
		}
		replayed = true
		return nil
	})
	if err != nil {
		// A concurrent sweep may have persisted the same record between our
		// check and create; that is a skip, not a failure.
		if domain.IsDuplicateBufferKey(err) {
			stats.AlreadyPersisted++
		} else {
			return err
		}
	} else if replayed {
		stats.Replayed++
	} else {
		stats.AlreadyPersisted++
	}

	consumed, err := r.buffer.Consume(ctx, key)
	if err != nil {
		return err
	}
	if consumed {
		stats.Consumed++
	}
	return nil
}

// Run executes sweeps at the given interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}
