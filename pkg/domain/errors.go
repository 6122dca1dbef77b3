package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an ID references nothing.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrInvalidStatus is returned when a transition is attempted on a submission
// that is no longer pending. It carries the actual current status so callers
// can report which terminal state won.
type ErrInvalidStatus struct {
	ID      string
	Current SubmissionStatus
}

func (e ErrInvalidStatus) Error() string {
	return fmt.Sprintf("submission %s is not transitionable: status is %s", e.ID, e.Current)
}

// ErrDuplicateBufferKey is returned when a submission already exists for an
// intake buffer key. The reconciliation sweep treats it as proof the record
// was already replayed, not as a failure.
type ErrDuplicateBufferKey struct {
	SubmissionID string
	BufferKey    string
}

func (e ErrDuplicateBufferKey) Error() string {
	return fmt.Sprintf("submission %s already persisted for buffer key %s", e.SubmissionID, e.BufferKey)
}

// ErrValidation is returned for structurally malformed input that must be
// rejected before any store mutation.
type ErrValidation struct {
	Field  string
	Reason string
}

func (e ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// ErrStoreUnavailable wraps an authoritative store failure. Intake callers
// fall back to the durable buffer; approval and listing callers surface it as
// a retryable failure.
type ErrStoreUnavailable struct {
	Op  string
	Err error
}

func (e ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("authoritative store unavailable during %s: %v", e.Op, e.Err)
}

func (e ErrStoreUnavailable) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var e ErrNotFound
	return errors.As(err, &e)
}

// IsInvalidStatus reports whether err is an ErrInvalidStatus.
func IsInvalidStatus(err error) bool {
	var e ErrInvalidStatus
	return errors.As(err, &e)
}

// IsDuplicateBufferKey reports whether err is an ErrDuplicateBufferKey.
func IsDuplicateBufferKey(err error) bool {
	var e ErrDuplicateBufferKey
	return errors.As(err, &e)
}

// IsValidation reports whether err is an ErrValidation.
func IsValidation(err error) bool {
	var e ErrValidation
	return errors.As(err, &e)
}

// IsStoreUnavailable reports whether err is an ErrStoreUnavailable.
func IsStoreUnavailable(err error) bool {
	var e ErrStoreUnavailable
	return errors.As(err, &e)
}
