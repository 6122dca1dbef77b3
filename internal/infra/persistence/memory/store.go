// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. It is also the canonical
// transactional engine embedded by the sqlite and postgres backends.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"clubatlas/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Submission aliases domain.Submission for in-memory persistence operations.
	Submission = domain.Submission
	// ClubRecord aliases domain.ClubRecord.
	ClubRecord = domain.ClubRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing guard evaluation.
	Result = domain.Result
	// GuardEngine aliases domain.GuardEngine used to evaluate structural guards.
	GuardEngine = domain.GuardEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	submissions map[string]Submission
	clubs       map[string]ClubRecord
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Submissions map[string]Submission `json:"submissions"`
	Clubs       map[string]ClubRecord `json:"clubs"`
}

func newMemoryState() memoryState {
	return memoryState{
		submissions: make(map[string]Submission),
		clubs:       make(map[string]ClubRecord),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Submissions: make(map[string]Submission, len(state.submissions)),
		Clubs:       make(map[string]ClubRecord, len(state.clubs)),
	}
	for k, v := range state.submissions {
		s.Submissions[k] = cloneSubmission(v)
	}
	for k, v := range state.clubs {
		s.Clubs[k] = cloneClubRecord(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Submissions {
		state.submissions[k] = cloneSubmission(v)
	}
	for k, v := range s.Clubs {
		state.clubs[k] = cloneClubRecord(v)
	}
	return state
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.submissions {
		out.submissions[k] = cloneSubmission(v)
	}
	for k, v := range s.clubs {
		out.clubs[k] = cloneClubRecord(v)
	}
	return out
}

func cloneSubmission(sub Submission) Submission {
	cp := sub
	cp.Payload = clonePayload(sub.Payload)
	if sub.Review != nil {
		review := *sub.Review
		cp.Review = &review
	}
	cp.DupCheck.Matches = append([]domain.DupMatch(nil), sub.DupCheck.Matches...)
	return cp
}

func cloneClubRecord(c ClubRecord) ClubRecord {
	cp := c
	cp.Payload = clonePayload(c.Payload)
	return cp
}

func clonePayload(p domain.ClubPayload) domain.ClubPayload {
	cp := p
	cp.Tags = append([]string(nil), p.Tags...)
	cp.Links = append([]string(nil), p.Links...)
	return cp
}

// Store is a mutex-guarded in-memory store. RunInTransaction is the single
// mutual-exclusion point: the status compare-and-set in TransitionSubmission
// executes entirely under the store lock.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *GuardEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided guard engine.
func NewStore(engine *GuardEngine) *Store {
	if engine == nil {
		engine = domain.NewGuardEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID(prefix string) string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return prefix + "-" + hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// GuardEngine exposes the currently configured engine.
func (s *Store) GuardEngine() *GuardEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider; tests use it for deterministic timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListSubmissions returns all submissions within the transaction snapshot.
func (v transactionView) ListSubmissions() []Submission {
	out := make([]Submission, 0, len(v.state.submissions))
	for _, sub := range v.state.submissions {
		out = append(out, cloneSubmission(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListClubRecords returns all club records within the transaction snapshot.
func (v transactionView) ListClubRecords() []ClubRecord {
	out := make([]ClubRecord, 0, len(v.state.clubs))
	for _, c := range v.state.clubs {
		out = append(out, cloneClubRecord(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindSubmission retrieves a submission by ID from the snapshot.
func (v transactionView) FindSubmission(id string) (Submission, bool) {
	sub, ok := v.state.submissions[id]
	if !ok {
		return Submission{}, false
	}
	return cloneSubmission(sub), true
}

// FindClubRecord retrieves a club record by ID from the snapshot.
func (v transactionView) FindClubRecord(id string) (ClubRecord, bool) {
	c, ok := v.state.clubs[id]
	if !ok {
		return ClubRecord{}, false
	}
	return cloneClubRecord(c), true
}

// FindClubRecordByKey retrieves a club record by its natural key.
func (v transactionView) FindClubRecordByKey(key domain.NaturalKey) (ClubRecord, bool) {
	for _, c := range v.state.clubs {
		if c.NaturalKey() == key {
			return cloneClubRecord(c), true
		}
	}
	return ClubRecord{}, false
}

// FindSubmissionByBufferKey retrieves the submission created from the given
// intake buffer record, if any. The buffer key is the dedup key for replay.
func (v transactionView) FindSubmissionByBufferKey(key string) (Submission, bool) {
	if key == "" {
		return Submission{}, false
	}
	for _, sub := range v.state.submissions {
		if sub.BufferKey == key {
			return cloneSubmission(sub), true
		}
	}
	return Submission{}, false
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.GuardViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindSubmission retrieves a submission within the transaction.
func (tx *transaction) FindSubmission(id string) (Submission, bool) {
	return newTransactionView(&tx.state).FindSubmission(id)
}

// FindClubRecord retrieves a club record within the transaction.
func (tx *transaction) FindClubRecord(id string) (ClubRecord, bool) {
	return newTransactionView(&tx.state).FindClubRecord(id)
}

// FindClubRecordByKey retrieves a club record by natural key within the transaction.
func (tx *transaction) FindClubRecordByKey(key domain.NaturalKey) (ClubRecord, bool) {
	return newTransactionView(&tx.state).FindClubRecordByKey(key)
}

// FindSubmissionByBufferKey retrieves a submission by buffer key within the transaction.
func (tx *transaction) FindSubmissionByBufferKey(key string) (Submission, bool) {
	return newTransactionView(&tx.state).FindSubmissionByBufferKey(key)
}

// CreateSubmission stores a new submission. IDs are assigned here, at
// authoritative-store write time, never earlier.
func (tx *transaction) CreateSubmission(sub Submission) (Submission, error) {
	if sub.ID == "" {
		sub.ID = tx.store.newID("sub")
	}
	if _, exists := tx.state.submissions[sub.ID]; exists {
		return Submission{}, fmt.Errorf("submission %q already exists", sub.ID)
	}
	if sub.BufferKey != "" {
		if existing, ok := tx.FindSubmissionByBufferKey(sub.BufferKey); ok {
			return Submission{}, domain.ErrDuplicateBufferKey{SubmissionID: existing.ID, BufferKey: sub.BufferKey}
		}
	}
	if sub.Kind == "" {
		sub.Kind = domain.KindNew
	}
	if sub.Kind == domain.KindEdit && sub.TargetID == "" {
		return Submission{}, domain.ErrValidation{Field: "target_id", Reason: "edit submission requires a target record"}
	}
	sub.Status = domain.StatusPending
	sub.Review = nil
	sub.CreatedAt = tx.now
	sub.UpdatedAt = tx.now
	tx.state.submissions[sub.ID] = cloneSubmission(sub)
	tx.recordChange(Change{Entity: domain.EntitySubmission, Action: domain.ActionCreate, After: cloneSubmission(sub)})
	return cloneSubmission(sub), nil
}

// TransitionSubmission performs the atomic status compare-and-set. The whole
// check-and-mutate runs under the store lock, so exactly one of two racing
// transitions wins; the loser observes the winner's terminal status.
func (tx *transaction) TransitionSubmission(id string, target domain.SubmissionStatus, actor, reason string) (Submission, error) {
	current, ok := tx.state.submissions[id]
	if !ok {
		return Submission{}, domain.ErrNotFound{Entity: domain.EntitySubmission, ID: id}
	}
	if !target.Valid() || !target.Terminal() {
		return Submission{}, domain.ErrValidation{Field: "status", Reason: fmt.Sprintf("illegal target status %q", target)}
	}
	if current.Status != domain.StatusPending {
		return Submission{}, domain.ErrInvalidStatus{ID: id, Current: current.Status}
	}
	before := cloneSubmission(current)
	current.Status = target
	current.Review = &domain.ReviewMeta{Reviewer: actor, ReviewedAt: tx.now, Reason: reason}
	current.UpdatedAt = tx.now
	tx.state.submissions[id] = cloneSubmission(current)
	tx.recordChange(Change{Entity: domain.EntitySubmission, Action: domain.ActionUpdate, Before: before, After: cloneSubmission(current)})
	return cloneSubmission(current), nil
}

// CreateClubRecord materializes a published record.
func (tx *transaction) CreateClubRecord(c ClubRecord) (ClubRecord, error) {
	if c.ID == "" {
		c.ID = tx.store.newID("club")
	}
	if _, exists := tx.state.clubs[c.ID]; exists {
		return ClubRecord{}, fmt.Errorf("club record %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.clubs[c.ID] = cloneClubRecord(c)
	tx.recordChange(Change{Entity: domain.EntityClubRecord, Action: domain.ActionCreate, After: cloneClubRecord(c)})
	return cloneClubRecord(c), nil
}

// UpdateClubRecord mutates a club record using the provided mutator function.
// The record ID and creation timestamp are preserved; UpdatedAt is bumped.
func (tx *transaction) UpdateClubRecord(id string, mutator func(*ClubRecord) error) (ClubRecord, error) {
	current, ok := tx.state.clubs[id]
	if !ok {
		return ClubRecord{}, domain.ErrNotFound{Entity: domain.EntityClubRecord, ID: id}
	}
	before := cloneClubRecord(current)
	if err := mutator(&current); err != nil {
		return ClubRecord{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.clubs[id] = cloneClubRecord(current)
	tx.recordChange(Change{Entity: domain.EntityClubRecord, Action: domain.ActionUpdate, Before: before, After: cloneClubRecord(current)})
	return cloneClubRecord(current), nil
}

// DeleteClubRecord removes a club record from the transaction state.
func (tx *transaction) DeleteClubRecord(id string) error {
	current, ok := tx.state.clubs[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityClubRecord, ID: id}
	}
	delete(tx.state.clubs, id)
	tx.recordChange(Change{Entity: domain.EntityClubRecord, Action: domain.ActionDelete, Before: cloneClubRecord(current)})
	return nil
}

// GetSubmission retrieves a submission by ID.
func (s *Store) GetSubmission(id string) (Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.state.submissions[id]
	if !ok {
		return Submission{}, false
	}
	return cloneSubmission(sub), true
}

// GetClubRecord retrieves a club record by ID.
func (s *Store) GetClubRecord(id string) (ClubRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.clubs[id]
	if !ok {
		return ClubRecord{}, false
	}
	return cloneClubRecord(c), true
}

// ListSubmissions returns submissions matching the filter, sorted by creation
// time (ties broken by ID) and paged when requested.
func (s *Store) ListSubmissions(filter domain.SubmissionFilter) []Submission {
	s.mu.RLock()
	out := make([]Submission, 0, len(s.state.submissions))
	for _, sub := range s.state.submissions {
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && sub.Kind != filter.Kind {
			continue
		}
		if !matchesQuery(sub.Payload, filter.Query) {
			continue
		}
		out = append(out, cloneSubmission(sub))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if filter.SortDesc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return pageSubmissions(out, filter.Page, filter.PerPage)
}

// ListClubRecords returns club records matching the filter, sorted by ID.
func (s *Store) ListClubRecords(filter domain.ClubFilter) []ClubRecord {
	s.mu.RLock()
	out := make([]ClubRecord, 0, len(s.state.clubs))
	for _, c := range s.state.clubs {
		if filter.Province != "" && !strings.EqualFold(c.Payload.Province, filter.Province) {
			continue
		}
		if !matchesQuery(c.Payload, filter.Query) {
			continue
		}
		out = append(out, cloneClubRecord(c))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// matchesQuery applies case-insensitive partial matching across the indexable
// payload fields: name, university, region hierarchy, and free text.
func matchesQuery(p domain.ClubPayload, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	for _, field := range []string{p.Name, p.University, p.Province, p.City, p.ShortDescription, p.LongDescription} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func pageSubmissions(subs []Submission, page, perPage int) []Submission {
	if perPage <= 0 {
		return subs
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(subs) {
		return []Submission{}
	}
	end := start + perPage
	if end > len(subs) {
		end = len(subs)
	}
	return subs[start:end]
}
