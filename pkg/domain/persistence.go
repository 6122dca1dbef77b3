package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateSubmission(Submission) (Submission, error)
	// TransitionSubmission applies the status precondition (current status
	// must be pending) and the mutation as one atomic step. Losing a race
	// yields ErrInvalidStatus carrying the winner's terminal status.
	TransitionSubmission(id string, target SubmissionStatus, actor, reason string) (Submission, error)
	CreateClubRecord(ClubRecord) (ClubRecord, error)
	UpdateClubRecord(id string, mutator func(*ClubRecord) error) (ClubRecord, error)
	DeleteClubRecord(id string) error
	FindSubmission(id string) (Submission, bool)
	FindClubRecord(id string) (ClubRecord, bool)
	FindClubRecordByKey(key NaturalKey) (ClubRecord, bool)
	FindSubmissionByBufferKey(key string) (Submission, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListSubmissions() []Submission
	ListClubRecords() []ClubRecord
	FindSubmission(id string) (Submission, bool)
	FindClubRecord(id string) (ClubRecord, bool)
	FindClubRecordByKey(key NaturalKey) (ClubRecord, bool)
	FindSubmissionByBufferKey(key string) (Submission, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetSubmission(id string) (Submission, bool)
	ListSubmissions(filter SubmissionFilter) []Submission
	GetClubRecord(id string) (ClubRecord, bool)
	ListClubRecords(filter ClubFilter) []ClubRecord
}
