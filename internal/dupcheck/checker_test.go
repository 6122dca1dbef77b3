package dupcheck

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubatlas/internal/infra/persistence/memory"
	"clubatlas/pkg/domain"
)

func seedClub(t *testing.T, store *memory.Store, name, university string) domain.ClubRecord {
	t.Helper()
	var rec domain.ClubRecord
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		rec, txErr = tx.CreateClubRecord(domain.ClubRecord{
			Payload: domain.ClubPayload{
				Name:             name,
				University:       university,
				Province:         "Beijing",
				ShortDescription: "s",
				LongDescription:  "l",
			},
		})
		return txErr
	})
	require.NoError(t, err)
	return rec
}

func TestCheckFlagsSimilarName(t *testing.T) {
	store := memory.NewStore(domain.NewGuardEngine())
	existing := seedClub(t, store, "Chess Club", "MIT")
	seedClub(t, store, "Astronomy Society", "Caltech")

	checker := NewChecker(store, slog.Default())
	result := checker.Check(context.Background(), domain.ClubPayload{Name: "Chess Club", University: "MIT"})

	assert.False(t, result.Passed)
	require.NotEmpty(t, result.Matches)
	assert.Equal(t, existing.ID, result.Matches[0].RecordID)
	assert.InDelta(t, 1.0, result.Matches[0].Score, 0.001)
}

func TestCheckPassesOnUnrelatedName(t *testing.T) {
	store := memory.NewStore(domain.NewGuardEngine())
	seedClub(t, store, "Chess Club", "MIT")

	checker := NewChecker(store, slog.Default())
	result := checker.Check(context.Background(), domain.ClubPayload{Name: "Pottery Circle", University: "Oberlin"})

	assert.True(t, result.Passed)
	assert.Empty(t, result.Matches)
}

func TestCheckTokenizesCJKNames(t *testing.T) {
	store := memory.NewStore(domain.NewGuardEngine())
	existing := seedClub(t, store, "游戏社", "清华大学")

	checker := NewChecker(store, slog.Default())
	// shared characters with no whitespace must still overlap
	result := checker.Check(context.Background(), domain.ClubPayload{Name: "游戏开发社", University: "清华大学"})

	assert.False(t, result.Passed)
	require.NotEmpty(t, result.Matches)
	assert.Equal(t, existing.ID, result.Matches[0].RecordID)
	assert.Greater(t, result.Matches[0].Score, DefaultThreshold)
}

func TestCheckOrdersAndTruncatesMatches(t *testing.T) {
	store := memory.NewStore(domain.NewGuardEngine())
	best := seedClub(t, store, "Go Club", "Tsinghua")
	for i := 0; i < 7; i++ {
		seedClub(t, store, "Go Society", "Tsinghua")
	}

	checker := NewChecker(store, slog.Default(), WithMaxMatches(3))
	result := checker.Check(context.Background(), domain.ClubPayload{Name: "Go Club", University: "Tsinghua"})

	require.Len(t, result.Matches, 3)
	assert.Equal(t, best.ID, result.Matches[0].RecordID, "exact match must rank first")
	for i := 1; i < len(result.Matches); i++ {
		assert.GreaterOrEqual(t, result.Matches[i-1].Score, result.Matches[i].Score)
	}
}

func TestCheckThresholdOption(t *testing.T) {
	store := memory.NewStore(domain.NewGuardEngine())
	seedClub(t, store, "Chess Club", "MIT")

	strict := NewChecker(store, slog.Default(), WithThreshold(0.99))
	result := strict.Check(context.Background(), domain.ClubPayload{Name: "Chess Society", University: "MIT"})
	assert.True(t, result.Passed, "partial overlap must fall below a strict threshold")
}

func TestCheckDegradesToPassOnStoreFailure(t *testing.T) {
	checker := NewChecker(brokenStore{}, slog.Default())
	result := checker.Check(context.Background(), domain.ClubPayload{Name: "Chess Club", University: "MIT"})

	assert.True(t, result.Passed, "degraded check must not block intake")
	assert.Empty(t, result.Matches)
}

// brokenStore fails every read; the checker must absorb it.
type brokenStore struct{}

func (brokenStore) RunInTransaction(context.Context, func(domain.Transaction) error) (domain.Result, error) {
	return domain.Result{}, domain.ErrStoreUnavailable{Op: "tx", Err: context.DeadlineExceeded}
}

func (brokenStore) View(context.Context, func(domain.TransactionView) error) error {
	return domain.ErrStoreUnavailable{Op: "view", Err: context.DeadlineExceeded}
}

func (brokenStore) GetSubmission(string) (domain.Submission, bool) { return domain.Submission{}, false }
func (brokenStore) GetClubRecord(string) (domain.ClubRecord, bool) { return domain.ClubRecord{}, false }
func (brokenStore) ListSubmissions(domain.SubmissionFilter) []domain.Submission { return nil }
func (brokenStore) ListClubRecords(domain.ClubFilter) []domain.ClubRecord       { return nil }
