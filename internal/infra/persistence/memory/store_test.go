package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"clubatlas/pkg/domain"
)

func newTestStore() *Store {
	return NewStore(domain.NewGuardEngine())
}

func payload(name, university string) domain.ClubPayload {
	return domain.ClubPayload{
		Name:             name,
		University:       university,
		Province:         "Beijing",
		City:             "Beijing",
		Latitude:         39.99,
		Longitude:        116.32,
		ShortDescription: "short",
		LongDescription:  "long",
	}
}

func createSubmission(t *testing.T, store *Store, sub Submission) Submission {
	t.Helper()
	var created Submission
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		created, txErr = tx.CreateSubmission(sub)
		return txErr
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	return created
}

func TestCreateSubmissionAssignsIDAndForcesPending(t *testing.T) {
	store := newTestStore()
	created := createSubmission(t, store, Submission{
		Payload: payload("Chess Club", "MIT"),
		Status:  domain.StatusApproved, // must be ignored
		Review:  &domain.ReviewMeta{Reviewer: "smuggled"},
	})
	if created.ID == "" || !strings.HasPrefix(created.ID, "sub-") {
		t.Fatalf("expected generated sub- id, got %q", created.ID)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("expected forced pending status, got %s", created.Status)
	}
	if created.Review != nil {
		t.Fatalf("expected review metadata cleared on create")
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("expected matching create/update timestamps, got %v / %v", created.CreatedAt, created.UpdatedAt)
	}
}

func TestCreateSubmissionBufferKeyDedup(t *testing.T) {
	store := newTestStore()
	key := "intake/20260101T000000.000000000Z-abc.json"
	createSubmission(t, store, Submission{Payload: payload("A", "U"), BufferKey: key})

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.CreateSubmission(Submission{Payload: payload("A", "U"), BufferKey: key})
		return txErr
	})
	if !domain.IsDuplicateBufferKey(err) {
		t.Fatalf("expected buffer key conflict, got %v", err)
	}
	var dup domain.ErrDuplicateBufferKey
	if errors.As(err, &dup); dup.BufferKey != key {
		t.Fatalf("expected conflict to carry buffer key %s, got %+v", key, dup)
	}
	if got := len(store.ListSubmissions(domain.SubmissionFilter{})); got != 1 {
		t.Fatalf("expected exactly one submission, got %d", got)
	}
}

func TestCreateEditSubmissionRequiresTarget(t *testing.T) {
	store := newTestStore()
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.CreateSubmission(Submission{Kind: domain.KindEdit, Payload: payload("A", "U")})
		return txErr
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTransitionSubmissionApprove(t *testing.T) {
	store := newTestStore()
	created := createSubmission(t, store, Submission{Payload: payload("A", "U")})

	var transitioned Submission
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		transitioned, txErr = tx.TransitionSubmission(created.ID, domain.StatusApproved, "admin", "")
		return txErr
	})
	if err != nil {
		t.Fatalf("TransitionSubmission: %v", err)
	}
	if transitioned.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %s", transitioned.Status)
	}
	if transitioned.Review == nil || transitioned.Review.Reviewer != "admin" {
		t.Fatalf("expected review metadata, got %+v", transitioned.Review)
	}
}

func TestTransitionSubmissionRejectsNonPending(t *testing.T) {
	store := newTestStore()
	created := createSubmission(t, store, Submission{Payload: payload("A", "U")})
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.TransitionSubmission(created.ID, domain.StatusApproved, "first", "")
		return txErr
	})
	if err != nil {
		t.Fatalf("first transition: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.TransitionSubmission(created.ID, domain.StatusRejected, "second", "late")
		return txErr
	})
	var invalid domain.ErrInvalidStatus
	if !domain.IsInvalidStatus(err) {
		t.Fatalf("expected invalid status error, got %v", err)
	}
	if asErr, ok := err.(domain.ErrInvalidStatus); ok {
		invalid = asErr
	}
	if invalid.Current != domain.StatusApproved {
		t.Fatalf("expected error to carry winning status approved, got %s", invalid.Current)
	}
}

func TestTransitionSubmissionRejectsIllegalTarget(t *testing.T) {
	store := newTestStore()
	created := createSubmission(t, store, Submission{Payload: payload("A", "U")})
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.TransitionSubmission(created.ID, domain.StatusPending, "admin", "")
		return txErr
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error for non-terminal target, got %v", err)
	}
}

func TestConcurrentTransitionsExactlyOneWins(t *testing.T) {
	store := newTestStore()
	created := createSubmission(t, store, Submission{Payload: payload("A", "U")})

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := domain.StatusApproved
			reason := ""
			if i%2 == 1 {
				target = domain.StatusRejected
				reason = "lost the race"
			}
			_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
				_, txErr := tx.TransitionSubmission(created.ID, target, "racer", reason)
				return txErr
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case domain.IsInvalidStatus(err):
		default:
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", wins)
	}
	final, ok := store.GetSubmission(created.ID)
	if !ok || !final.Status.Terminal() {
		t.Fatalf("expected terminal final status, got %+v", final)
	}
}

func TestUpdateClubRecordPreservesIDAndCreatedAt(t *testing.T) {
	store := newTestStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	store.SetNowFunc(func() time.Time { return current })

	var rec ClubRecord
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		rec, txErr = tx.CreateClubRecord(ClubRecord{Payload: payload("A", "U"), ApprovedBy: "admin"})
		return txErr
	})
	if err != nil {
		t.Fatalf("CreateClubRecord: %v", err)
	}

	current = base.Add(time.Hour)
	var updated ClubRecord
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateClubRecord(rec.ID, func(c *ClubRecord) error {
			c.ID = "club-forged"
			c.CreatedAt = time.Time{}
			c.Payload.Name = "Renamed"
			return nil
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("UpdateClubRecord: %v", err)
	}
	if updated.ID != rec.ID {
		t.Fatalf("expected id preserved, got %q", updated.ID)
	}
	if !updated.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("expected created-at preserved, got %v", updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(rec.UpdatedAt) {
		t.Fatalf("expected updated-at bumped, got %v", updated.UpdatedAt)
	}
	if updated.Payload.Name != "Renamed" {
		t.Fatalf("expected mutated payload, got %q", updated.Payload.Name)
	}
}

func TestDeleteClubRecord(t *testing.T) {
	store := newTestStore()
	var rec ClubRecord
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		rec, txErr = tx.CreateClubRecord(ClubRecord{Payload: payload("A", "U")})
		return txErr
	})
	if err != nil {
		t.Fatalf("CreateClubRecord: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteClubRecord(rec.ID)
	})
	if err != nil {
		t.Fatalf("DeleteClubRecord: %v", err)
	}
	if _, ok := store.GetClubRecord(rec.ID); ok {
		t.Fatalf("expected record gone")
	}
	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteClubRecord(rec.ID)
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not-found on second delete, got %v", err)
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := newTestStore()
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, txErr := tx.CreateSubmission(Submission{Payload: payload("A", "U")}); txErr != nil {
			return txErr
		}
		_, txErr := tx.TransitionSubmission("missing", domain.StatusApproved, "x", "")
		return txErr
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if got := len(store.ListSubmissions(domain.SubmissionFilter{})); got != 0 {
		t.Fatalf("expected rollback, found %d submissions", got)
	}
}

func TestGuardEngineBlocksCommit(t *testing.T) {
	engine := domain.NewGuardEngine()
	engine.Register(blockAllGuard{})
	store := NewStore(engine)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.CreateSubmission(Submission{Payload: payload("A", "U")})
		return txErr
	})
	var guardErr domain.GuardViolationError
	if err == nil {
		t.Fatalf("expected guard violation")
	}
	if asErr, ok := err.(domain.GuardViolationError); ok {
		guardErr = asErr
	} else {
		t.Fatalf("expected GuardViolationError, got %T", err)
	}
	if len(guardErr.Result.Violations) == 0 {
		t.Fatalf("expected violations attached")
	}
	if got := len(store.ListSubmissions(domain.SubmissionFilter{})); got != 0 {
		t.Fatalf("expected blocked commit to leave store empty, found %d", got)
	}
}

type blockAllGuard struct{}

func (blockAllGuard) Name() string { return "block_all" }

func (blockAllGuard) Evaluate(_ context.Context, _ domain.GuardView, changes []Change) (Result, error) {
	res := Result{}
	for range changes {
		res.Violations = append(res.Violations, domain.Violation{Guard: "block_all", Severity: domain.SeverityBlock})
	}
	return res, nil
}

func TestListSubmissionsFiltersAndPaging(t *testing.T) {
	store := newTestStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.SetNowFunc(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	createSubmission(t, store, Submission{Payload: payload("Chess Club", "MIT")})
	second := createSubmission(t, store, Submission{Payload: payload("Go Club", "Tsinghua")})
	third := createSubmission(t, store, Submission{Payload: payload("Robotics", "MIT")})
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, txErr := tx.TransitionSubmission(second.ID, domain.StatusRejected, "admin", "duplicate")
		return txErr
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	pending := store.ListSubmissions(domain.SubmissionFilter{Status: domain.StatusPending})
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	byQuery := store.ListSubmissions(domain.SubmissionFilter{Query: "tsinghua"})
	if len(byQuery) != 1 || byQuery[0].ID != second.ID {
		t.Fatalf("query filter mismatch: %+v", byQuery)
	}

	newest := store.ListSubmissions(domain.SubmissionFilter{SortDesc: true, Page: 1, PerPage: 1})
	if len(newest) != 1 || newest[0].ID != third.ID {
		t.Fatalf("expected newest-first paging to return latest, got %+v", newest)
	}
	empty := store.ListSubmissions(domain.SubmissionFilter{Page: 9, PerPage: 2})
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}
}

func TestListClubRecordsFilters(t *testing.T) {
	store := newTestStore()
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		p1 := payload("Chess Club", "MIT")
		p1.Province = "Ontario"
		if _, txErr := tx.CreateClubRecord(ClubRecord{Payload: p1}); txErr != nil {
			return txErr
		}
		p2 := payload("Go Club", "Tsinghua")
		_, txErr := tx.CreateClubRecord(ClubRecord{Payload: p2})
		return txErr
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if got := store.ListClubRecords(domain.ClubFilter{Province: "ontario"}); len(got) != 1 {
		t.Fatalf("expected case-insensitive province match, got %d", len(got))
	}
	if got := store.ListClubRecords(domain.ClubFilter{Query: "go"}); len(got) != 1 {
		t.Fatalf("expected query match, got %d", len(got))
	}
	if got := store.ListClubRecords(domain.ClubFilter{}); len(got) != 2 {
		t.Fatalf("expected all records, got %d", len(got))
	}
}

func TestFindersWithinTransaction(t *testing.T) {
	store := newTestStore()
	key := "intake/k1.json"
	sub := createSubmission(t, store, Submission{Payload: payload("Chess Club", "MIT"), BufferKey: key})
	var rec ClubRecord
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var txErr error
		rec, txErr = tx.CreateClubRecord(ClubRecord{Payload: payload("Chess Club", "MIT")})
		return txErr
	})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, ok := tx.FindSubmission(sub.ID); !ok {
			t.Errorf("FindSubmission missed %s", sub.ID)
		}
		if _, ok := tx.FindSubmissionByBufferKey(key); !ok {
			t.Errorf("FindSubmissionByBufferKey missed %s", key)
		}
		if _, ok := tx.FindSubmissionByBufferKey(""); ok {
			t.Errorf("empty buffer key must not match")
		}
		if _, ok := tx.FindClubRecord(rec.ID); !ok {
			t.Errorf("FindClubRecord missed %s", rec.ID)
		}
		if _, ok := tx.FindClubRecordByKey(domain.NaturalKeyOf("CHESS CLUB", " mit ")); !ok {
			t.Errorf("FindClubRecordByKey missed normalized key")
		}
		if got := len(tx.Snapshot().ListSubmissions()); got != 1 {
			t.Errorf("expected 1 submission in view, got %d", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("finder transaction: %v", err)
	}
}

func TestExportImportStateRoundTrip(t *testing.T) {
	store := newTestStore()
	sub := createSubmission(t, store, Submission{Payload: payload("Chess Club", "MIT"), BufferKey: "intake/rt.json"})

	snapshot := store.ExportState()
	other := newTestStore()
	other.ImportState(snapshot)

	loaded, ok := other.GetSubmission(sub.ID)
	if !ok {
		t.Fatalf("expected submission after import")
	}
	if loaded.BufferKey != sub.BufferKey || loaded.Payload.Name != sub.Payload.Name {
		t.Fatalf("round-trip mismatch: %+v", loaded)
	}

	// Exported snapshot must be isolated from later store mutations.
	snapshot.Submissions[sub.ID] = Submission{}
	if reloaded, _ := store.GetSubmission(sub.ID); reloaded.Payload.Name != "Chess Club" {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestViewIsReadOnlySnapshot(t *testing.T) {
	store := newTestStore()
	createSubmission(t, store, Submission{Payload: payload("A", "U")})
	err := store.View(context.Background(), func(view TransactionView) error {
		if got := len(view.ListSubmissions()); got != 1 {
			t.Errorf("expected 1 submission, got %d", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}
