package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rybkagreen/pagetune/internal/orchestrator"
	"github.com/rybkagreen/pagetune/internal/stats"
)

// Run is one persisted optimization run.
type Run struct {
	ID           int64
	SessionID    string
	Caller       string
	State        string
	InitialScore int
	FinalScore   int
	Cycles       int
	HTML         string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// SaveRun inserts a finished run. It satisfies orchestrator.Persister.
func (db *DB) SaveRun(ctx context.Context, rec orchestrator.RunRecord) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs
		(session_id, caller, state, initial_score, final_score, cycles, html, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Caller, rec.State, rec.InitialScore, rec.FinalScore,
		rec.Cycles, rec.HTML,
		rec.StartedAt.UTC().Format(time.RFC3339), rec.FinishedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// LatestRun returns the newest run for a session, or nil if none exists.
func (db *DB) LatestRun(ctx context.Context, sessionID string) (*Run, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, session_id, caller, state, initial_score, final_score, cycles, html, started_at, finished_at
		FROM runs WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID)
	return scanRun(row)
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, session_id, caller, state, initial_score, final_score, cycles, html, started_at, finished_at
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Caller, &r.State, &r.InitialScore,
			&r.FinalScore, &r.Cycles, &r.HTML, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	var started, finished string
	err := row.Scan(&r.ID, &r.SessionID, &r.Caller, &r.State, &r.InitialScore,
		&r.FinalScore, &r.Cycles, &r.HTML, &started, &finished)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	return &r, nil
}

// SaveStats records a point-in-time stats snapshot.
func (db *DB) SaveStats(ctx context.Context, s stats.Summary) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO stats_snapshots
		(taken_at, optimizations_performed, suggestions_generated, suggestions_accepted,
		 fixes_applied, average_processing_ms, average_score_gain)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.SnapshotAt.UTC().Format(time.RFC3339), s.OptimizationsPerformed,
		s.SuggestionsGenerated, s.SuggestionsAccepted, s.FixesApplied,
		s.AverageProcessingMs, s.AverageScoreGain,
	)
	return err
}

// LatestStats returns the newest stats snapshot, or nil if none exists.
func (db *DB) LatestStats(ctx context.Context) (*stats.Summary, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT taken_at, optimizations_performed, suggestions_generated, suggestions_accepted,
		 fixes_applied, average_processing_ms, average_score_gain
		FROM stats_snapshots ORDER BY id DESC LIMIT 1`)

	var s stats.Summary
	var takenAt string
	err := row.Scan(&takenAt, &s.OptimizationsPerformed, &s.SuggestionsGenerated,
		&s.SuggestionsAccepted, &s.FixesApplied, &s.AverageProcessingMs, &s.AverageScoreGain)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.SnapshotAt, _ = time.Parse(time.RFC3339, takenAt)
	return &s, nil
}
