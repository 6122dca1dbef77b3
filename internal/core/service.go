package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"clubatlas/internal/intake"
	"clubatlas/pkg/domain"
)

// DuplicateChecker is the advisory similarity scan run at intake time.
type DuplicateChecker interface {
	Check(ctx context.Context, payload ClubPayload) DupCheckResult
}

// SnapshotRebuilder regenerates the read-optimized snapshot.
type SnapshotRebuilder interface {
	Rebuild(ctx context.Context) error
}

// DefaultStoreTimeout bounds authoritative-store calls on the intake path.
// When exceeded, the durable buffer remains the fallback of record.
const DefaultStoreTimeout = 5 * time.Second

// Service orchestrates the submission pipeline: durable intake, advisory
// duplicate check, approval transitions, and snapshot synchronization.
type Service struct {
	store        PersistentStore
	buffer       *intake.Buffer
	checker      DuplicateChecker
	syncer       SnapshotRebuilder
	metrics      MetricsRecorder
	logger       *slog.Logger
	storeTimeout time.Duration

	rebuilds sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics attaches a metrics recorder.
func WithMetrics(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithStoreTimeout overrides the authoritative-store timeout on the intake path.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// NewService constructs the pipeline service.
func NewService(store PersistentStore, buffer *intake.Buffer, checker DuplicateChecker, syncer SnapshotRebuilder, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:        store,
		buffer:       buffer,
		checker:      checker,
		syncer:       syncer,
		metrics:      NoopMetricsRecorder{},
		logger:       logger.With("component", "core_service"),
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying persistence implementation.
func (s *Service) Store() PersistentStore { return s.store }

// IntakeRequest carries a validated payload into the pipeline. Validation of
// business rules (field bounds, province membership, coordinate ranges)
// happens upstream; the core enforces only structural invariants.
type IntakeRequest struct {
	Kind     SubmissionKind
	TargetID string
	Payload  ClubPayload
	Origin   OriginMeta
}

// IntakeResult reports a successful intake. Buffered is true when the
// authoritative store was unreachable and the durable buffer is the record
// of the attempt until the reconciliation sweep replays it.
type IntakeResult struct {
	SubmissionID string
	Receipt      intake.Receipt
	Buffered     bool
	DupCheck     DupCheckResult
}

// Intake runs the durability pipeline for one submission attempt: advisory
// duplicate check, buffer write (fatal on failure), then a bounded attempt
// against the authoritative store. Store failure after a successful buffer
// write is absorbed: the sweep will replay the record.
func (s *Service) Intake(ctx context.Context, req IntakeRequest) (result IntakeResult, err error) {
	defer s.observe(ctx, "intake", time.Now(), &err)

	if req.Kind == "" {
		req.Kind = KindNew
	}
	if req.Kind != KindNew && req.Kind != KindEdit {
		return IntakeResult{}, domain.ErrValidation{Field: "kind", Reason: "unknown submission kind"}
	}
	if req.Kind == KindEdit && req.TargetID == "" {
		return IntakeResult{}, domain.ErrValidation{Field: "target_id", Reason: "edit submission requires a target record"}
	}
	if req.Origin.SubmittedAt.IsZero() {
		req.Origin.SubmittedAt = time.Now().UTC()
	}

	dup := s.checker.Check(ctx, req.Payload)

	receipt, err := s.buffer.Persist(ctx, intake.BufferRecord{
		Kind:        req.Kind,
		TargetID:    req.TargetID,
		Payload:     req.Payload,
		Origin:      req.Origin,
		DupCheck:    dup,
		SubmittedAt: req.Origin.SubmittedAt,
	})
	if err != nil {
		// The one write that must never silently fail.
		return IntakeResult{}, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	var created Submission
	_, storeErr := s.store.RunInTransaction(storeCtx, func(tx Transaction) error {
		var txErr error
		created, txErr = tx.CreateSubmission(Submission{
			Kind:      req.Kind,
			TargetID:  req.TargetID,
			Payload:   req.Payload,
			Origin:    req.Origin,
			DupCheck:  dup,
			BufferKey: receipt.Key,
		})
		return txErr
	})
	if storeErr != nil {
		if domain.IsValidation(storeErr) {
			return IntakeResult{}, storeErr
		}
		s.logger.Warn("authoritative store unavailable, intake deferred to buffer",
			"buffer_key", receipt.Key, "error", storeErr)
		return IntakeResult{Receipt: receipt, Buffered: true, DupCheck: dup}, nil
	}
	return IntakeResult{SubmissionID: created.ID, Receipt: receipt, DupCheck: dup}, nil
}

// Approve atomically claims a pending submission, materializes (or, for edit
// submissions, updates in place) the published record, and records review
// metadata. The snapshot rebuild is triggered asynchronously: its failure is
// logged and retried on the next trigger, never surfaced as approval failure.
func (s *Service) Approve(ctx context.Context, id, actor string) (sub Submission, rec ClubRecord, err error) {
	defer s.observe(ctx, "approve", time.Now(), &err)

	if actor == "" {
		return Submission{}, ClubRecord{}, domain.ErrValidation{Field: "actor", Reason: "approver identity required"}
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var txErr error
		sub, txErr = tx.TransitionSubmission(id, StatusApproved, actor, "")
		if txErr != nil {
			return txErr
		}
		if sub.Kind == KindEdit {
			rec, txErr = tx.UpdateClubRecord(sub.TargetID, func(existing *ClubRecord) error {
				existing.Payload = sub.Payload
				existing.SubmissionID = sub.ID
				existing.ApprovedBy = actor
				return nil
			})
			return txErr
		}
		rec, txErr = tx.CreateClubRecord(ClubRecord{
			Payload:      sub.Payload,
			SubmissionID: sub.ID,
			ApprovedBy:   actor,
		})
		return txErr
	})
	if err != nil {
		return Submission{}, ClubRecord{}, classifyStoreErr("approve", err)
	}
	s.triggerRebuild()
	return sub, rec, nil
}

// Reject moves a pending submission to rejected. A non-empty reason is
// required and checked before any store mutation occurs.
func (s *Service) Reject(ctx context.Context, id, actor, reason string) (sub Submission, err error) {
	defer s.observe(ctx, "reject", time.Now(), &err)

	if actor == "" {
		return Submission{}, domain.ErrValidation{Field: "actor", Reason: "reviewer identity required"}
	}
	if reason == "" {
		return Submission{}, domain.ErrValidation{Field: "reason", Reason: "rejection requires a non-empty reason"}
	}
	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var txErr error
		sub, txErr = tx.TransitionSubmission(id, StatusRejected, actor, reason)
		return txErr
	})
	if err != nil {
		return Submission{}, classifyStoreErr("reject", err)
	}
	return sub, nil
}

// GetSubmission retrieves a submission by ID.
func (s *Service) GetSubmission(ctx context.Context, id string) (Submission, error) {
	sub, ok := s.store.GetSubmission(id)
	if !ok {
		return Submission{}, domain.ErrNotFound{Entity: EntitySubmission, ID: id}
	}
	return sub, nil
}

// ListSubmissions lists submissions matching the filter.
func (s *Service) ListSubmissions(ctx context.Context, filter domain.SubmissionFilter) []Submission {
	return s.store.ListSubmissions(filter)
}

// GetClub retrieves a published record by ID.
func (s *Service) GetClub(ctx context.Context, id string) (ClubRecord, error) {
	rec, ok := s.store.GetClubRecord(id)
	if !ok {
		return ClubRecord{}, domain.ErrNotFound{Entity: EntityClubRecord, ID: id}
	}
	return rec, nil
}

// ListClubs lists published records matching the filter.
func (s *Service) ListClubs(ctx context.Context, filter domain.ClubFilter) []ClubRecord {
	return s.store.ListClubRecords(filter)
}

// UpdateClub applies an administrative edit to a published record, bumping
// its updated timestamp and triggering a snapshot rebuild.
func (s *Service) UpdateClub(ctx context.Context, id, actor string, mutator func(*ClubRecord) error) (rec ClubRecord, err error) {
	defer s.observe(ctx, "update_club", time.Now(), &err)

	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var txErr error
		rec, txErr = tx.UpdateClubRecord(id, func(existing *ClubRecord) error {
			if err := mutator(existing); err != nil {
				return err
			}
			if actor != "" {
				existing.ApprovedBy = actor
			}
			return nil
		})
		return txErr
	})
	if err != nil {
		return ClubRecord{}, classifyStoreErr("update_club", err)
	}
	s.triggerRebuild()
	return rec, nil
}

// DeleteClub removes a published record and triggers a snapshot rebuild.
func (s *Service) DeleteClub(ctx context.Context, id string) (err error) {
	defer s.observe(ctx, "delete_club", time.Now(), &err)

	_, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteClubRecord(id)
	})
	if err != nil {
		return classifyStoreErr("delete_club", err)
	}
	s.triggerRebuild()
	return nil
}

// triggerRebuild kicks the snapshot syncer without blocking the caller.
func (s *Service) triggerRebuild() {
	if s.syncer == nil {
		return
	}
	s.rebuilds.Add(1)
	go func() {
		defer s.rebuilds.Done()
		if err := s.syncer.Rebuild(context.Background()); err != nil {
			s.logger.Error("snapshot rebuild failed, will retry on next trigger", "error", err)
		}
	}()
}

// WaitRebuilds blocks until all in-flight snapshot rebuilds have finished.
// Used by tests and by the CLI before process exit.
func (s *Service) WaitRebuilds() {
	s.rebuilds.Wait()
}

func (s *Service) observe(ctx context.Context, op string, start time.Time, err *error) {
	s.metrics.Observe(ctx, op, *err == nil, time.Since(start))
}

// classifyStoreErr passes typed domain errors through and wraps everything
// else as a retryable store failure.
func classifyStoreErr(op string, err error) error {
	if domain.IsNotFound(err) || domain.IsInvalidStatus(err) || domain.IsValidation(err) {
		return err
	}
	var guardErr domain.GuardViolationError
	if errors.As(err, &guardErr) {
		return err
	}
	return domain.ErrStoreUnavailable{Op: op, Err: err}
}
