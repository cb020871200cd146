package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/proxysync/internal/game"
	"github.com/roach88/proxysync/internal/scene"
)

// Run is a recorded session.
type Run struct {
	ID         string
	Label      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Runs returns every run, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, label, started_at, finished_at
		FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Label, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: started_at: %w", r.ID, err)
		}
		if finished.Valid {
			t, err := time.Parse(time.RFC3339Nano, finished.String)
			if err != nil {
				return nil, fmt.Errorf("run %s: finished_at: %w", r.ID, err)
			}
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the most recently started run, or false if there is none.
func (j *Journal) LastRun(ctx context.Context) (Run, bool, error) {
	runs, err := j.Runs(ctx)
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[len(runs)-1], true, nil
}

// Events returns the events of a run in seq order.
func (j *Journal) Events(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, run_id, frame, kind, node, idx, size
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e    Entry
			kind string
		)
		if err := rows.Scan(&e.Seq, &e.RunID, &e.Frame, &kind, &e.Node, &e.Index, &e.Size); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = scene.EventKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

// Frames returns the frame rows of a run in frame order.
func (j *Journal) Frames(ctx context.Context, runID string) ([]game.FrameInfo, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT frame, delta_time, added, removed, nodes
		FROM frames
		WHERE run_id = ?
		ORDER BY frame ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	frames := []game.FrameInfo{}
	for rows.Next() {
		var fi game.FrameInfo
		if err := rows.Scan(&fi.Frame, &fi.DeltaTime, &fi.Added, &fi.Removed, &fi.Nodes); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, fi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return frames, nil
}
