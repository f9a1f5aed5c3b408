// Package runlog records pipeline runs and their state transitions in SQLite.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tollwatch/internal/model"
)

// Entry is one recorded run.
type Entry struct {
	ID         string          `json:"id"`
	RunDate    time.Time       `json:"run_date"`
	Status     model.RunStatus `json:"status"`
	State      model.RunState  `json:"state"`
	DryRun     bool            `json:"dry_run"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Counts
	Error string `json:"error,omitempty"`
}

// Counts are the record totals of a finished run.
type Counts struct {
	Plazas   int `json:"plazas"`
	Rates    int `json:"rates"`
	Rejected int `json:"rejected"`
	Changes  int `json:"changes"`
}

// RunLog is a SQLite-backed run history.
type RunLog struct {
	db *sql.DB
}

// Open opens (creating if needed) the run log at path and migrates it.
func Open(ctx context.Context, path string) (*RunLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	l := &RunLog{db: db}
	if err := l.migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return l, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	run_date    TEXT NOT NULL,
	status      TEXT NOT NULL,
	state       TEXT NOT NULL,
	dry_run     INTEGER NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	plazas      INTEGER NOT NULL DEFAULT 0,
	rates       INTEGER NOT NULL DEFAULT 0,
	rejected    INTEGER NOT NULL DEFAULT 0,
	changes     INTEGER NOT NULL DEFAULT 0,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (l *RunLog) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, schema)
	return eris.Wrap(err, "runlog: migrate")
}

// Close closes the database.
func (l *RunLog) Close() error {
	return l.db.Close()
}

// Start records a new running run for runDate and returns its id.
func (l *RunLog) Start(ctx context.Context, runDate time.Time, dryRun bool) (string, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, run_date, status, state, dry_run, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, model.FormatDate(runDate), string(model.RunStatusRunning), string(model.StateFetching), dryRun, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start run for %s", model.FormatDate(runDate))
	}
	return id, nil
}

// Transition records the run entering state.
func (l *RunLog) Transition(ctx context.Context, id string, state model.RunState) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET state = ? WHERE id = ? AND status = ?`,
		string(state), id, string(model.RunStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: transition %s", id)
	}
	return checkRowsAffected(res, id)
}

// Complete marks the run done with its counts.
func (l *RunLog) Complete(ctx context.Context, id string, counts Counts) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, state = ?, finished_at = ?, plazas = ?, rates = ?, rejected = ?, changes = ?
		 WHERE id = ?`,
		string(model.RunStatusComplete), string(model.StateDone), time.Now().UTC(),
		counts.Plazas, counts.Rates, counts.Rejected, counts.Changes, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete %s", id)
	}
	return checkRowsAffected(res, id)
}

// Fail marks the run failed. state is the step that failed.
func (l *RunLog) Fail(ctx context.Context, id string, state model.RunState, msg string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, state = ?, finished_at = ?, error = ? WHERE id = ?`,
		string(model.RunStatusFailed), string(state), time.Now().UTC(), msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail %s", id)
	}
	return checkRowsAffected(res, id)
}

const selectColumns = `SELECT id, run_date, status, state, dry_run, started_at, finished_at,
	plazas, rates, rejected, changes, error FROM runs`

// Get returns one run.
func (l *RunLog) Get(ctx context.Context, id string) (*Entry, error) {
	e, err := scanEntry(l.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("runlog: run not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: get %s", id)
	}
	return e, nil
}

// LastSuccess returns the most recent completed run, or nil if none.
func (l *RunLog) LastSuccess(ctx context.Context) (*Entry, error) {
	e, err := scanEntry(l.db.QueryRowContext(ctx,
		selectColumns+` WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		string(model.RunStatusComplete),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "runlog: last success")
	}
	return e, nil
}

// List returns up to limit runs, most recent first. limit <= 0 means all.
func (l *RunLog) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, selectColumns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list")
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (*Entry, error) {
	var (
		e        Entry
		runDate  string
		status   string
		state    string
		finished sql.NullTime
		errMsg   sql.NullString
	)
	if err := row.Scan(&e.ID, &runDate, &status, &state, &e.DryRun, &e.StartedAt, &finished,
		&e.Plazas, &e.Rates, &e.Rejected, &e.Changes, &errMsg); err != nil {
		return nil, err
	}
	d, err := model.ParseDate(runDate)
	if err != nil {
		return nil, err
	}
	e.RunDate = d
	e.Status = model.RunStatus(status)
	e.State = model.RunState(state)
	if finished.Valid {
		t := finished.Time
		e.FinishedAt = &t
	}
	e.Error = errMsg.String
	return &e, nil
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "runlog: rows affected")
	}
	if n == 0 {
		return eris.Errorf("runlog: run not found: %s", id)
	}
	return nil
}
