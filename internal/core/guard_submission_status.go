package core

import (
	"context"
	"fmt"

	"clubatlas/pkg/domain"
)

// SubmissionStatusGuard blocks structurally illegal submission states: unknown
// status values, terminal states without review metadata, rejections without a
// reason, and any movement out of a terminal state.
func SubmissionStatusGuard() domain.Guard {
	return submissionStatusGuard{}
}

type submissionStatusGuard struct{}

func (submissionStatusGuard) Name() string { return "submission_status" }

func (submissionStatusGuard) Evaluate(_ context.Context, _ domain.GuardView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Guard:    "submission_status",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntitySubmission,
			EntityID: id,
		})
	}
	for _, change := range changes {
		if change.Entity != domain.EntitySubmission {
			continue
		}
		after, ok := change.After.(domain.Submission)
		if !ok {
			continue
		}
		if !after.Status.Valid() {
			block(after.ID, fmt.Sprintf("submission %s has invalid status %q", after.ID, after.Status))
			continue
		}
		if after.Status.Terminal() && after.Review == nil {
			block(after.ID, fmt.Sprintf("submission %s is %s without review metadata", after.ID, after.Status))
		}
		if after.Status == domain.StatusRejected && after.Review != nil && after.Review.Reason == "" {
			block(after.ID, fmt.Sprintf("submission %s rejected without a reason", after.ID))
		}
		if before, ok := change.Before.(domain.Submission); ok {
			if before.Status.Terminal() && after.Status != before.Status {
				block(after.ID, fmt.Sprintf("cannot move submission %s from terminal state %s to %s", after.ID, before.Status, after.Status))
			}
		}
	}
	return res, nil
}

// ClubNaturalKeyGuard warns when two published records share a natural key
// (name + university). Duplicates are advisory here: the intake-time
// duplicate check already flagged them to the reviewer.
func ClubNaturalKeyGuard() domain.Guard {
	return clubNaturalKeyGuard{}
}

type clubNaturalKeyGuard struct{}

func (clubNaturalKeyGuard) Name() string { return "club_natural_key" }

func (clubNaturalKeyGuard) Evaluate(_ context.Context, view domain.GuardView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityClubRecord || change.Action == domain.ActionDelete {
			continue
		}
		after, ok := change.After.(domain.ClubRecord)
		if !ok {
			continue
		}
		key := after.NaturalKey()
		for _, other := range view.ListClubRecords() {
			if other.ID != after.ID && other.NaturalKey() == key {
				res.Violations = append(res.Violations, domain.Violation{
					Guard:    "club_natural_key",
					Severity: domain.SeverityWarn,
					Message:  fmt.Sprintf("club record %s duplicates natural key of %s (%s / %s)", after.ID, other.ID, after.Payload.Name, after.Payload.University),
					Entity:   domain.EntityClubRecord,
					EntityID: after.ID,
				})
			}
		}
	}
	return res, nil
}

// NewDefaultGuardEngine builds a guard engine with the built-in structural checks.
func NewDefaultGuardEngine() *GuardEngine {
	engine := domain.NewGuardEngine()
	engine.Register(SubmissionStatusGuard())
	engine.Register(ClubNaturalKeyGuard())
	return engine
}
