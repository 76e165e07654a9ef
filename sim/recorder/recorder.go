// Package recorder persists epoch and migration trace records to SQLite.
package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	// SQLite driver for database/sql.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"

	"github.com/cxlmemsim/cxlmemsim/sim/trace"
)

const defaultBatchSize = 10000

// SQLiteRecorder buffers trace records and writes them to a SQLite database
// in batches, one transaction per batch.
type SQLiteRecorder struct {
	mu sync.Mutex

	path      string
	batchSize int

	db            *sql.DB
	epochStmt     *sql.Stmt
	migrationStmt *sql.Stmt

	epochs     []trace.EpochRecord
	migrations []trace.MigrationRecord
}

// NewSQLiteRecorder creates a recorder writing to path. An empty path picks
// a unique cxlmemsim_<id>.sqlite3 in the working directory. Buffered records
// are flushed when the program exits through atexit.
func NewSQLiteRecorder(path string) *SQLiteRecorder {
	if path == "" {
		path = "cxlmemsim_" + xid.New().String() + ".sqlite3"
	}
	r := &SQLiteRecorder{path: path, batchSize: defaultBatchSize}
	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			logrus.Errorf("recorder: final flush of %s: %v", r.path, err)
		}
	})
	return r
}

// Path returns the database file.
func (r *SQLiteRecorder) Path() string { return r.path }

// Init opens the database, creates the tables and prepares the inserts.
func (r *SQLiteRecorder) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, err := sql.Open("sqlite3", r.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", r.path, err)
	}
	if err := r.prepare(db); err != nil {
		r.epochStmt, r.migrationStmt = nil, nil
		return errors.Join(err, db.Close())
	}
	r.db = db
	logrus.Infof("recorder: writing trace to %s", r.path)
	return nil
}

// prepare creates the tables and the insert statements on db.
func (r *SQLiteRecorder) prepare(db *sql.DB) error {
	var err error

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS epoch (
			run_id         TEXT,
			epoch          INTEGER,
			timestamp      INTEGER,
			latency        REAL,
			bandwidth      REAL,
			congestion     REAL,
			conflicts      INTEGER,
			local          INTEGER,
			remote         INTEGER,
			injected_delay REAL
		)`,
		`CREATE TABLE IF NOT EXISTS migration (
			run_id    TEXT,
			timestamp INTEGER,
			address   INTEGER,
			source    TEXT,
			dest      TEXT
		)`,
	} {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("creating tables in %s: %w", r.path, err)
		}
	}

	r.epochStmt, err = db.Prepare(`INSERT INTO epoch VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing epoch insert: %w", err)
	}
	r.migrationStmt, err = db.Prepare(`INSERT INTO migration VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing migration insert: %w", err)
	}
	return nil
}

// WriteEpoch buffers an epoch record, flushing when the batch is full.
func (r *SQLiteRecorder) WriteEpoch(rec trace.EpochRecord) error {
	r.mu.Lock()
	r.epochs = append(r.epochs, rec)
	full := len(r.epochs) >= r.batchSize
	r.mu.Unlock()
	if full {
		return r.Flush()
	}
	return nil
}

// WriteMigration buffers a migration record, flushing when the batch is full.
func (r *SQLiteRecorder) WriteMigration(rec trace.MigrationRecord) error {
	r.mu.Lock()
	r.migrations = append(r.migrations, rec)
	full := len(r.migrations) >= r.batchSize
	r.mu.Unlock()
	if full {
		return r.Flush()
	}
	return nil
}

// WriteTrace buffers every record of st.
func (r *SQLiteRecorder) WriteTrace(st *trace.SimulationTrace) error {
	for _, e := range st.Epochs {
		if err := r.WriteEpoch(e); err != nil {
			return err
		}
	}
	for _, m := range st.Migrations {
		if err := r.WriteMigration(m); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes all buffered records in one transaction.
func (r *SQLiteRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.epochs) == 0 && len(r.migrations) == 0 {
		return nil
	}
	if r.db == nil {
		return fmt.Errorf("recorder %s: flush before Init", r.path)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	epochStmt, migrationStmt := tx.Stmt(r.epochStmt), tx.Stmt(r.migrationStmt)
	for _, e := range r.epochs {
		if _, err := epochStmt.Exec(e.RunID, e.Epoch, int64(e.Timestamp), e.Latency, e.Bandwidth,
			e.Congestion, int64(e.Conflicts), int64(e.Local), int64(e.Remote), e.InjectedDelay); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("inserting epoch %d: %w", e.Epoch, err)
		}
	}
	for _, m := range r.migrations {
		if _, err := migrationStmt.Exec(m.RunID, int64(m.Timestamp), int64(m.Address), m.From, m.To); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("inserting migration of %#x: %w", m.Address, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing trace batch: %w", err)
	}
	r.epochs, r.migrations = nil, nil
	return nil
}

// Close flushes and closes the database. The database is closed even
// when the final flush fails.
func (r *SQLiteRecorder) Close() error {
	flushErr := r.Flush()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return flushErr
	}
	err := r.db.Close()
	r.db, r.epochStmt, r.migrationStmt = nil, nil, nil
	return errors.Join(flushErr, err)
}
