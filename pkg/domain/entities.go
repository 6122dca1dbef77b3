// Package domain defines the core persistent entities, value types, and
// guard evaluation primitives used by clubatlas.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntitySubmission identifies a user-submitted create/edit request.
	EntitySubmission EntityType = "submission"
	// EntityClubRecord identifies a published club record.
	EntityClubRecord EntityType = "club_record"
)

// SubmissionKind distinguishes brand-new entries from edits of published records.
type SubmissionKind string

// Canonical submission kinds.
const (
	// KindNew proposes a new club record.
	KindNew SubmissionKind = "new"
	// KindEdit proposes changes to an existing club record referenced by TargetID.
	KindEdit SubmissionKind = "edit"
)

// SubmissionStatus represents the review lifecycle of a submission.
// Transitions are forward-only: pending may move to approved or rejected
// exactly once, and terminal states never move again.
type SubmissionStatus string

// Canonical submission statuses.
const (
	StatusPending  SubmissionStatus = "pending"
	StatusApproved SubmissionStatus = "approved"
	StatusRejected SubmissionStatus = "rejected"
)

// Valid reports whether the status is one of the canonical values.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ClubPayload carries the submitted record fields. The payload arrives
// pre-validated by the validation collaborator; the core only enforces
// structural invariants on it.
//
// ShortDescription and LongDescription are independently stored and never
// derived from one another.
type ClubPayload struct {
	Name             string   `json:"name"`
	University       string   `json:"university"`
	Province         string   `json:"province"`
	City             string   `json:"city,omitempty"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	ShortDescription string   `json:"short_description"`
	LongDescription  string   `json:"long_description"`
	Tags             []string `json:"tags,omitempty"`
	MediaPath        string   `json:"media_path,omitempty"`
	Links            []string `json:"links,omitempty"`
	Contact          string   `json:"contact,omitempty"`
}

// OriginMeta captures write-once intake provenance.
type OriginMeta struct {
	SubmitterContact string    `json:"submitter_contact,omitempty"`
	RemoteAddr       string    `json:"remote_addr,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// ReviewMeta records the terminal review decision. Nil on a submission until
// it leaves pending.
type ReviewMeta struct {
	Reviewer   string    `json:"reviewer"`
	ReviewedAt time.Time `json:"reviewed_at"`
	Reason     string    `json:"reason,omitempty"`
}

// DupMatch is one advisory similarity candidate.
type DupMatch struct {
	RecordID string  `json:"record_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// DupCheckResult is the advisory outcome of the intake-time duplicate scan.
// It never blocks persistence; a degraded check reports Passed with no matches.
type DupCheckResult struct {
	Passed  bool       `json:"passed"`
	Matches []DupMatch `json:"matches,omitempty"`
}

// Submission is a user-proposed create/edit request awaiting a decision.
type Submission struct {
	ID        string           `json:"id"`
	Kind      SubmissionKind   `json:"kind"`
	TargetID  string           `json:"target_id,omitempty"`
	Status    SubmissionStatus `json:"status"`
	Payload   ClubPayload      `json:"payload"`
	Origin    OriginMeta       `json:"origin"`
	Review    *ReviewMeta      `json:"review,omitempty"`
	DupCheck  DupCheckResult   `json:"dup_check"`
	BufferKey string           `json:"buffer_key,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ClubRecord is an approved, publicly servable club entry. Its ID lives in a
// namespace distinct from submission IDs.
type ClubRecord struct {
	ID           string      `json:"id"`
	Payload      ClubPayload `json:"payload"`
	SubmissionID string      `json:"submission_id"`
	ApprovedBy   string      `json:"approved_by"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// NaturalKey returns the name+university pair used to match records across
// stores during migration.
func (c ClubRecord) NaturalKey() NaturalKey {
	return NaturalKeyOf(c.Payload.Name, c.Payload.University)
}

// NaturalKey identifies a club record independently of store-assigned IDs.
type NaturalKey struct {
	Name       string
	University string
}

// SubmissionFilter narrows and orders submission listings.
type SubmissionFilter struct {
	Status   SubmissionStatus // empty matches all statuses
	Kind     SubmissionKind   // empty matches all kinds
	Query    string           // case-insensitive partial match on name/university/region/descriptions
	Page     int              // 1-based, 0 means first page
	PerPage  int              // 0 means no paging
	SortDesc bool             // newest-first when set
}

// ClubFilter narrows club record listings.
type ClubFilter struct {
	Province string
	Query    string
}
