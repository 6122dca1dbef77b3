package domain

import "context"

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in transactions.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Severity captures guard outcomes.
type Severity string

// Guard severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed guard evaluation.
type Violation struct {
	Guard    string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the guard engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// GuardViolationError is returned when blocking violations are present.
type GuardViolationError struct {
	Result Result
}

func (e GuardViolationError) Error() string {
	return "transaction blocked by structural guards"
}

// GuardView provides read-only access to domain entities for guard evaluation.
type GuardView interface {
	ListSubmissions() []Submission
	ListClubRecords() []ClubRecord
	FindSubmission(id string) (Submission, bool)
	FindClubRecord(id string) (ClubRecord, bool)
}

// Guard defines a structural check executed within a transaction boundary.
// Guards enforce shape invariants (status legality, id presence, review
// metadata on terminal states); business validation happens upstream.
type Guard interface {
	Name() string
	Evaluate(ctx context.Context, view GuardView, changes []Change) (Result, error)
}

// GuardEngine orchestrates guard evaluation.
type GuardEngine struct {
	guards []Guard
}

// NewGuardEngine constructs an engine instance.
func NewGuardEngine() *GuardEngine {
	return &GuardEngine{}
}

// Register appends a guard to the engine.
func (e *GuardEngine) Register(guard Guard) {
	e.guards = append(e.guards, guard)
}

// Evaluate executes all registered guards and aggregates their results.
func (e *GuardEngine) Evaluate(ctx context.Context, view GuardView, changes []Change) (Result, error) {
	var combined Result
	for _, guard := range e.guards {
		res, err := guard.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
