// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics while snapshotting state into a JSONB table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"clubatlas/internal/infra/persistence/memory"
	"clubatlas/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/clubatlas?sslmode=disable"
)

// errStaleRevision signals that another store instance persisted a newer
// state revision; the caller must rehydrate and re-run its transaction.
var errStaleRevision = errors.New("state revision is stale")

// persistAttempts bounds the rehydrate-and-retry loop under contention.
const persistAttempts = 3

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation
// for transactions. A revision counter in state_meta arbitrates between store
// instances sharing one database: a snapshot only lands when the durable
// revision still matches the one this instance hydrated from, otherwise the
// instance rehydrates and re-runs the transaction against the fresh state.
type Store struct {
	*memory.Store
	db       *sql.DB
	mu       sync.Mutex
	revision int64
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to
// defaultDSN), ensures the snapshot tables exist, and hydrates the in-memory
// store from any existing snapshot.
func NewStore(dsn string, engine *domain.GuardEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, db: db}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// RunInTransaction applies the provided function within a transaction, then
// snapshots to Postgres if successful. When the durable revision has moved
// under us, the engine commit is discarded, the state rehydrated, and fn
// re-run: a transition raced by another process then observes the winner's
// status.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for attempt := 1; ; attempt++ {
		res, err := s.Store.RunInTransaction(ctx, fn)
		if err != nil {
			return res, err
		}
		pErr := s.persist(ctx)
		if pErr == nil {
			return res, nil
		}
		if !errors.Is(pErr, errStaleRevision) || attempt >= persistAttempts {
			return res, pErr
		}
		if lErr := s.load(ctx); lErr != nil {
			return domain.Result{}, lErr
		}
	}
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureStateTables(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	metaDDL := `CREATE TABLE IF NOT EXISTS state_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		revision BIGINT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, metaDDL); err != nil {
		return fmt.Errorf("ensure state_meta table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO state_meta(id, revision) VALUES(1, 0) ON CONFLICT (id) DO NOTHING`); err != nil {
		return fmt.Errorf("seed state_meta: %w", err)
	}
	return nil
}

var postgresBuckets = []string{"submissions", "clubs"}

// load hydrates the embedded engine and the revision marker from the database.
func (s *Store) load(ctx context.Context) error {
	row := s.db.QueryRowContext(ctx, `SELECT revision FROM state_meta WHERE id = 1`)
	if err := row.Scan(&s.revision); err != nil {
		return fmt.Errorf("read state revision: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	targets := map[string]any{
		"submissions": &snapshot.Submissions,
		"clubs":       &snapshot.Clubs,
	}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := targets[bucket]; ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return fmt.Errorf("decode %s: %w", bucket, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

// persist writes the full engine state, guarded by the revision check.
// Callers hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx, `UPDATE state_meta SET revision = revision + 1 WHERE id = 1 AND revision = $1`, s.revision)
	if err != nil {
		return fmt.Errorf("advance revision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance revision: %w", err)
	}
	if affected == 0 {
		return errStaleRevision
	}
	for _, bucket := range postgresBuckets {
		var data []byte
		switch bucket {
		case "submissions":
			data, err = json.Marshal(snapshot.Submissions)
		case "clubs":
			data, err = json.Marshal(snapshot.Clubs)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	s.revision++
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
