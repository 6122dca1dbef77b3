package core

import "clubatlas/pkg/domain"

type (
	EntityType       = domain.EntityType
	SubmissionKind   = domain.SubmissionKind
	SubmissionStatus = domain.SubmissionStatus
	ClubPayload      = domain.ClubPayload
	OriginMeta       = domain.OriginMeta
	ReviewMeta       = domain.ReviewMeta
	DupCheckResult   = domain.DupCheckResult
	Submission       = domain.Submission
	ClubRecord       = domain.ClubRecord
	Change           = domain.Change
	Violation        = domain.Violation
	Result           = domain.Result
	Transaction      = domain.Transaction
	TransactionView  = domain.TransactionView
	PersistentStore  = domain.PersistentStore
	GuardEngine      = domain.GuardEngine
)

const (
	EntitySubmission = domain.EntitySubmission
	EntityClubRecord = domain.EntityClubRecord
)

const (
	KindNew  = domain.KindNew
	KindEdit = domain.KindEdit
)

const (
	StatusPending  = domain.StatusPending
	StatusApproved = domain.StatusApproved
	StatusRejected = domain.StatusRejected
)
