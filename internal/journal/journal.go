package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/proxysync/internal/game"
	"github.com/roach88/proxysync/internal/scene"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on events(run_id, frame)
const currentSchemaVersion = 1

// ErrNoRun is returned when recording before BeginRun.
var ErrNoRun = errors.New("journal has no active run")

// Entry is a recorded scene event.
type Entry struct {
	Seq   int64
	RunID string
	Frame uint64
	scene.Event
}

// Journal buffers scene lifecycle events in memory and writes them to
// SQLite once per frame, in one transaction together with the frame row.
//
// Thread-safety model:
//   - Record may be called from any goroutine (it is installed as the scene
//     observer, which fires on both the game and render goroutines)
//   - Flush, BeginRun and EndRun are called from the game goroutine
//   - reads go straight to the database and may run concurrently
type Journal struct {
	db    *sql.DB
	clock *Clock
	now   func() time.Time

	mu      sync.Mutex
	runID   string
	pending []Entry
}

// Open creates or opens a journal at path. Applies pragmas and migrations.
//
// The database is configured with:
//   - WAL mode so trace reads do not block a running game
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	var last int64
	if err := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM events").Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("read last seq: %w", err)
	}

	return &Journal{
		db:    db,
		clock: NewClockAt(last),
		now:   time.Now,
	}, nil
}

// Close closes the database. Buffered events that were never flushed are
// lost.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// SetNow replaces the time source used for run timestamps.
func (j *Journal) SetNow(now func() time.Time) {
	if now != nil {
		j.now = now
	}
}

// BeginRun starts recording under runID.
func (j *Journal) BeginRun(ctx context.Context, runID, label string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, started_at)
		VALUES (?, ?, ?)
	`, runID, label, j.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	j.mu.Lock()
	j.runID = runID
	j.pending = j.pending[:0]
	j.mu.Unlock()
	return nil
}

// Record buffers e. Events recorded outside a run are dropped.
func (j *Journal) Record(e scene.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.runID == "" {
		return
	}
	j.pending = append(j.pending, Entry{
		Seq:   j.clock.Next(),
		RunID: j.runID,
		Event: e,
	})
}

// Observer returns Record as a scene observer.
func (j *Journal) Observer() scene.Observer {
	return j.Record
}

// Buffered returns the number of events waiting for the next flush.
func (j *Journal) Buffered() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Flush writes the frame row and every buffered event in one transaction.
// Events are stamped with the frame that flushed them.
func (j *Journal) Flush(ctx context.Context, fi game.FrameInfo) error {
	j.mu.Lock()
	runID := j.runID
	batch := j.pending
	j.pending = nil
	j.mu.Unlock()

	if runID == "" {
		return ErrNoRun
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("flush frame %d: %w", fi.Frame, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO frames (run_id, frame, delta_time, added, removed, nodes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, frame) DO NOTHING
	`, runID, fi.Frame, fi.DeltaTime, fi.Added, fi.Removed, fi.Nodes); err != nil {
		return fmt.Errorf("flush frame %d: %w", fi.Frame, err)
	}

	if err := insertEvents(ctx, tx, batch, fi.Frame); err != nil {
		return fmt.Errorf("flush frame %d: %w", fi.Frame, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("flush frame %d: commit: %w", fi.Frame, err)
	}
	return nil
}

// EndRun writes whatever is still buffered under frame and closes the run.
func (j *Journal) EndRun(ctx context.Context, frame uint64) error {
	j.mu.Lock()
	runID := j.runID
	batch := j.pending
	j.runID = ""
	j.pending = nil
	j.mu.Unlock()

	if runID == "" {
		return ErrNoRun
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	defer tx.Rollback()

	if err := insertEvents(ctx, tx, batch, frame); err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE runs SET finished_at = ? WHERE id = ?
	`, j.now().UTC().Format(time.RFC3339Nano), runID); err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("end run: commit: %w", err)
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, batch []Entry, frame uint64) error {
	if len(batch) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (seq, run_id, frame, kind, node, idx, size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.ExecContext(ctx, e.Seq, e.RunID, frame, string(e.Kind), e.Node, e.Index, e.Size); err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_events_run_frame
			ON events(run_id, frame)
		`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
