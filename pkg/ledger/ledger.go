// Package ledger keeps the history of reconciliation runs in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/rostersync/pkg/match"
	"github.com/hazyhaar/rostersync/pkg/reconcile"
)

// ErrRunNotFound is returned by Run for an unknown id.
var ErrRunNotFound = errors.New("ledger: run not found")

// Run is a row of the runs table.
type Run struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	DryRun     bool              `json:"dry_run"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Summary    reconcile.Summary `json:"summary"`
}

// DB manages the runs and run_rows tables.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the tables
// exist.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	ddl := []string{`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		source       TEXT NOT NULL,
		dry_run      INTEGER NOT NULL,
		started_at   INTEGER NOT NULL,
		finished_at  INTEGER NOT NULL,
		rows         INTEGER NOT NULL,
		matched      INTEGER NOT NULL,
		written      INTEGER NOT NULL,
		failed       INTEGER NOT NULL,
		decisions    TEXT NOT NULL
	)`,
		`CREATE TABLE IF NOT EXISTS run_rows (
		run_id         TEXT NOT NULL REFERENCES runs(id),
		row            INTEGER NOT NULL,
		display_name   TEXT NOT NULL DEFAULT '',
		derived_label  TEXT NOT NULL DEFAULT '',
		signal         TEXT NOT NULL DEFAULT '',
		matched        INTEGER NOT NULL,
		match_type     TEXT NOT NULL DEFAULT '',
		strategy       TEXT NOT NULL DEFAULT '',
		score          REAL NOT NULL DEFAULT 0,
		entity_id      TEXT NOT NULL DEFAULT '',
		current_label  TEXT NOT NULL DEFAULT '',
		decision       TEXT NOT NULL,
		reason         TEXT NOT NULL DEFAULT '',
		option_id      TEXT NOT NULL DEFAULT '',
		written        INTEGER NOT NULL,
		error          TEXT,
		PRIMARY KEY (run_id, row)
	)`,
		`CREATE INDEX IF NOT EXISTS runs_started ON runs(started_at)`,
	}
	for _, q := range ddl {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("create ledger tables: %w", err)
		}
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (l *DB) Close() error {
	return l.db.Close()
}

// Record stores a report and its rows in one transaction.
func (l *DB) Record(ctx context.Context, r *reconcile.Report) error {
	decisions, err := json.Marshal(r.Summary.Decisions)
	if err != nil {
		return fmt.Errorf("encode decisions: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record %s: %w", r.RunID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, source, dry_run, started_at, finished_at, rows, matched, written, failed, decisions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Source, r.DryRun, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(),
		r.Summary.Rows, r.Summary.Matched, r.Summary.Written, r.Summary.Failed, string(decisions),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_rows
		(run_id, row, display_name, derived_label, signal, matched, match_type, strategy,
		 score, entity_id, current_label, decision, reason, option_id, written, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run rows: %w", err)
	}
	defer stmt.Close()

	for _, res := range r.Results {
		var errText *string
		if res.Error != "" {
			errText = &res.Error
		}
		if _, err := stmt.ExecContext(ctx,
			r.RunID, res.Row, res.DisplayName, res.DerivedLabel, res.Signal, res.Matched,
			string(res.MatchType), string(res.Strategy), res.Score, res.EntityID, res.CurrentLabel,
			res.Decision, res.Reason, res.OptionID, res.Written, errText,
		); err != nil {
			return fmt.Errorf("insert row %d of run %s: %w", res.Row, r.RunID, err)
		}
	}
	return tx.Commit()
}

const runColumns = `id, source, dry_run, started_at, finished_at, rows, matched, written, failed, decisions`

// ListRuns returns the most recent runs, newest first. A non-positive limit
// means 50.
func (l *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Run returns one run by id.
func (l *DB) Run(ctx context.Context, id string) (Run, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// RunRows returns the row results of a run in input order.
func (l *DB) RunRows(ctx context.Context, runID string) ([]reconcile.RowResult, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT row, display_name, derived_label, signal,
		matched, match_type, strategy, score, entity_id, current_label, decision, reason,
		option_id, written, error
		FROM run_rows WHERE run_id = ? ORDER BY row`, runID)
	if err != nil {
		return nil, fmt.Errorf("list rows of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []reconcile.RowResult
	for rows.Next() {
		var (
			res       reconcile.RowResult
			matchType string
			strategy  string
			errText   sql.NullString
		)
		if err := rows.Scan(&res.Row, &res.DisplayName, &res.DerivedLabel, &res.Signal,
			&res.Matched, &matchType, &strategy, &res.Score, &res.EntityID, &res.CurrentLabel,
			&res.Decision, &res.Reason, &res.OptionID, &res.Written, &errText); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		res.MatchType = match.Type(matchType)
		res.Strategy = match.Strategy(strategy)
		res.Error = errText.String
		out = append(out, res)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run               Run
		started, finished int64
		decisions         string
	)
	err := s.Scan(&run.ID, &run.Source, &run.DryRun, &started, &finished,
		&run.Summary.Rows, &run.Summary.Matched, &run.Summary.Written, &run.Summary.Failed, &decisions)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	run.FinishedAt = time.UnixMilli(finished).UTC()
	if err := json.Unmarshal([]byte(decisions), &run.Summary.Decisions); err != nil {
		return Run{}, fmt.Errorf("decode decisions of run %s: %w", run.ID, err)
	}
	return run, nil
}
