// Package sqlite provides a SQLite-backed persistent store that mirrors the
// in-memory semantics while snapshotting the full state after every
// successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"clubatlas/internal/infra/persistence/memory"
	"clubatlas/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// errStaleRevision signals that another store instance persisted a newer
// state revision; the caller must rehydrate and re-run its transaction.
var errStaleRevision = errors.New("state revision is stale")

// persistAttempts bounds the rehydrate-and-retry loop under contention.
const persistAttempts = 3

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// A monotonically increasing revision on the state row set arbitrates between
// store instances: a persist only lands when the durable revision still
// matches the one this instance hydrated from, otherwise the instance
// rehydrates and re-runs the transaction against the fresh state. Racing
// status transitions from separate processes therefore resolve to exactly one
// winner, with the loser observing the winner's terminal status.
type Store struct {
	*memory.Store
	db       *sql.DB
	mu       sync.Mutex
	path     string
	revision int64
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.GuardEngine) (*Store, error) {
	if path == "" {
		path = "clubatlas.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		revision INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state_meta table: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO state_meta(id, revision) VALUES(1, 0)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed state_meta: %w", err)
	}
	ms := memory.NewStore(engine)
	s := &Store{Store: ms, db: db, path: path}
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{"submissions", "clubs"}

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
	snapshot := memory.Snapshot{}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		switch bucket {
		case "submissions":
			if err := json.Unmarshal(payload, &snapshot.Submissions); err != nil {
				return fmt.Errorf("decode submissions: %w", err)
			}
		case "clubs":
			if err := json.Unmarshal(payload, &snapshot.Clubs); err != nil {
				return fmt.Errorf("decode clubs: %w", err)
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
func (s *Store) persist(ctx context.Context) (retErr error) {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx, `UPDATE state_meta SET revision = revision + 1 WHERE id = 1 AND revision = ?`, s.revision)
	if err != nil {
		retErr = fmt.Errorf("advance revision: %w", err)
		return retErr
	}
	affected, err := res.RowsAffected()
	if err != nil {
		retErr = fmt.Errorf("advance revision: %w", err)
		return retErr
	}
	if affected == 0 {
		retErr = errStaleRevision
		return retErr
	}
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "submissions":
			data, err = json.Marshal(snapshot.Submissions)
		case "clubs":
			data, err = json.Marshal(snapshot.Clubs)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.revision++
	return nil
}

// RunInTransaction applies the provided function within a transaction, then
// snapshots state to SQLite. When the durable revision has moved under us,
// the engine commit is discarded, the state rehydrated, and fn re-run: a
// transition raced by another process then observes the winner's status.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
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

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
