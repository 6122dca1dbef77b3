package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"clubatlas/pkg/domain"
)

// stubConn is a minimal database/sql driver backing the state table with a
// map and the state_meta revision with a counter.
type stubConn struct {
	mu       sync.Mutex
	state    map[string][]byte
	revision int64
	execs    []string
	failExec bool
}

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{state: make(map[string][]byte)}
	return sql.OpenDB(stubConnector{conn: conn}), conn
}

type stubConnector struct{ conn *stubConn }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c stubConnector) Driver() driver.Driver                        { return stubDriver{} }

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use connector") }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare unsupported") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }
func (c *stubConn) Ping(context.Context) error          { return nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failExec {
		return nil, errors.New("exec failure")
	}
	c.execs = append(c.execs, query)
	switch {
	case strings.Contains(query, "UPDATE state_meta"):
		expected, ok := args[0].Value.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected revision arg %T", args[0].Value)
		}
		if expected != c.revision {
			return driver.RowsAffected(0), nil
		}
		c.revision++
		return driver.RowsAffected(1), nil
	case strings.Contains(query, "INSERT INTO state("):
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected bucket arg %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("unexpected payload arg %T", args[1].Value)
		}
		c.state[bucket] = append([]byte(nil), payload...)
	}
	return driver.ResultNoRows, nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case strings.Contains(query, "FROM state_meta"):
		return &stubRows{
			cols: []string{"revision"},
			rows: [][]driver.Value{{c.revision}},
		}, nil
	case strings.Contains(query, "FROM state"):
		rows := &stubRows{cols: []string{"bucket", "payload"}}
		for bucket, payload := range c.state {
			rows.rows = append(rows.rows, []driver.Value{bucket, append([]byte(nil), payload...)})
		}
		return rows, nil
	}
	return nil, fmt.Errorf("unexpected query %q", query)
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func testPayload(name string) domain.ClubPayload {
	return domain.ClubPayload{
		Name:             name,
		University:       "Tsinghua",
		Province:         "Beijing",
		ShortDescription: "short",
		LongDescription:  "long",
	}
}

func TestNewStoreAppliesDDL(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	if _, err := NewStore("", domain.NewGuardEngine()); err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sawDDL := false
	for _, stmt := range conn.execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
			break
		}
	}
	if !sawDDL {
		t.Fatalf("expected state-table DDL, got execs: %v", conn.execs)
	}
}

func TestRunInTransactionPersistsState(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored", domain.NewGuardEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var sub domain.Submission
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		sub, txErr = tx.CreateSubmission(domain.Submission{Payload: testPayload("Go Club")})
		return txErr
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	conn.mu.Lock()
	payload := conn.state["submissions"]
	conn.mu.Unlock()
	if len(payload) == 0 {
		t.Fatalf("expected submissions bucket persisted")
	}
	var persisted map[string]domain.Submission
	if err := json.Unmarshal(payload, &persisted); err != nil {
		t.Fatalf("decode persisted bucket: %v", err)
	}
	if _, ok := persisted[sub.ID]; !ok {
		t.Fatalf("expected submission %s in persisted state", sub.ID)
	}
}

func TestNewStoreLoadsExistingSnapshot(t *testing.T) {
	db, conn := newStubDB()
	seed := map[string]domain.Submission{
		"sub-seeded": {
			ID:      "sub-seeded",
			Kind:    domain.KindNew,
			Status:  domain.StatusPending,
			Payload: testPayload("Seeded Club"),
		},
	}
	data, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	conn.state["submissions"] = data

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewGuardEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	loaded, ok := store.GetSubmission("sub-seeded")
	if !ok {
		t.Fatalf("expected seeded submission hydrated")
	}
	if loaded.Payload.Name != "Seeded Club" {
		t.Fatalf("hydrated submission mismatch: %+v", loaded)
	}
}

func TestTransitionLosesToNewerRevision(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored", domain.NewGuardEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var sub domain.Submission
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var txErr error
		sub, txErr = tx.CreateSubmission(domain.Submission{Payload: testPayload("Go Club")})
		return txErr
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Simulate another store instance approving: rewrite the durable snapshot
	// and advance the revision behind this instance's back.
	approved := sub
	approved.Status = domain.StatusApproved
	approved.Review = &domain.ReviewMeta{Reviewer: "admin-other"}
	data, err := json.Marshal(map[string]domain.Submission{sub.ID: approved})
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	conn.mu.Lock()
	conn.state["submissions"] = data
	conn.revision++
	conn.mu.Unlock()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.TransitionSubmission(sub.ID, domain.StatusApproved, "admin-b", "")
		return txErr
	})
	var invalid domain.ErrInvalidStatus
	if !errors.As(err, &invalid) {
		t.Fatalf("expected stale approval to fail with ErrInvalidStatus, got %v", err)
	}
	if invalid.Current != domain.StatusApproved {
		t.Fatalf("expected loser to see approved status, got %s", invalid.Current)
	}
	loaded, ok := store.GetSubmission(sub.ID)
	if !ok {
		t.Fatalf("missing submission after rehydration")
	}
	if loaded.Review == nil || loaded.Review.Reviewer != "admin-other" {
		t.Fatalf("expected rehydrated state to keep the winning review, got %+v", loaded)
	}
}

func TestRunInTransactionSurfacesPersistError(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored", domain.NewGuardEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.mu.Lock()
	conn.failExec = true
	conn.mu.Unlock()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, txErr := tx.CreateSubmission(domain.Submission{Payload: testPayload("Go Club")})
		return txErr
	})
	if err == nil || !strings.Contains(err.Error(), "exec failure") {
		t.Fatalf("expected persist failure to surface, got %v", err)
	}
}

func TestRunInTransactionStopsOnUserError(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored", domain.NewGuardEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ddlExecs := len(conn.execs)
	userErr := errors.New("user fail")
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return userErr }); !errors.Is(err, userErr) {
		t.Fatalf("expected user error to propagate, got %v", err)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.execs) != ddlExecs {
		t.Fatalf("expected no persistence when user fn errors, got execs %v", conn.execs[ddlExecs:])
	}
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, fmt.Errorf("open fail")
	})
	defer restore()
	if _, err := NewStore("", domain.NewGuardEngine()); err == nil || !strings.Contains(err.Error(), "open fail") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestStoreDBExposesHandle(t *testing.T) {
	db, _ := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("ignored", domain.NewGuardEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.DB() == nil {
		t.Fatalf("expected DB handle")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
