// Package history records one row per sequence run in SQLite so operators
// can see when the prop fired and how each run ended.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/haunt-core/internal/sequence"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout keeps sub-second precision so ORDER BY started_at is stable.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by Get when no run has the requested ID.
var ErrNotFound = errors.New("history: run not found")

// Run is one recorded sequence run.
type Run struct {
	ID        string                   `json:"id"`
	Sequence  string                   `json:"sequence"`
	Source    string                   `json:"source"`
	Status    sequence.Status          `json:"status"`
	Reason    sequence.Reason          `json:"reason,omitempty"`
	Executed  int                      `json:"executed"`
	Skipped   int                      `json:"skipped"`
	Failed    int                      `json:"failed"`
	Failures  []sequence.ActionFailure `json:"failures,omitempty"`
	StartedAt time.Time                `json:"started_at"`
	Duration  time.Duration            `json:"duration_ns"`
}

// FromOutcome converts a run outcome into a history row.
func FromOutcome(o sequence.Outcome, source string) Run {
	return Run{
		ID:        o.RunID,
		Sequence:  o.Sequence,
		Source:    source,
		Status:    o.Status,
		Reason:    o.Reason,
		Executed:  o.Executed,
		Skipped:   o.Skipped,
		Failed:    len(o.Failures),
		Failures:  o.Failures,
		StartedAt: o.StartedAt,
		Duration:  o.Duration,
	}
}

// Filter controls which runs List returns.
type Filter struct {
	Sequence string // optional: setup or trigger
	Status   string // optional: completed, partial or aborted
	Source   string // optional: sensor, api, mqtt
	Limit    int    // default 50, max 200
	Offset   int
}

// ListResult is one page of runs, most recent first.
type ListResult struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// Repository stores run history.
type Repository interface {
	Record(ctx context.Context, outcome sequence.Outcome, source string) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Get(ctx context.Context, id string) (*Run, error)
}

// SQLiteRepository stores runs in the run_history table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts the outcome of one run.
func (r *SQLiteRepository) Record(ctx context.Context, outcome sequence.Outcome, source string) error {
	run := FromOutcome(outcome, source)
	if run.ID == "" {
		return fmt.Errorf("recording run: missing run ID")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	var failures *string
	if len(run.Failures) > 0 {
		b, err := json.Marshal(run.Failures)
		if err != nil {
			return fmt.Errorf("marshalling failures: %w", err)
		}
		s := string(b)
		failures = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO run_history (id, sequence, source, status, reason, executed, skipped, failed, failures, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Sequence, run.Source, string(run.Status), nullableString(string(run.Reason)),
		run.Executed, run.Skipped, run.Failed, failures,
		run.StartedAt.UTC().Format(timeLayout), run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const selectColumns = "id, sequence, source, status, reason, executed, skipped, failed, failures, started_at, duration_ms"

// List returns runs matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Sequence != "" {
		conditions = append(conditions, "sequence = ?")
		args = append(args, filter.Sequence)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM run_history " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions
		"SELECT %s FROM run_history %s ORDER BY started_at DESC LIMIT ? OFFSET ?",
		selectColumns, where,
	)
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return &ListResult{Runs: runs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Get returns one run by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM run_history WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var status, startedAt string
	var reason, failures sql.NullString
	var durationMS int64

	if err := s.Scan(&run.ID, &run.Sequence, &run.Source, &status, &reason,
		&run.Executed, &run.Skipped, &run.Failed, &failures, &startedAt, &durationMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	run.Status = sequence.Status(status)
	run.Reason = sequence.Reason(reason.String)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	if failures.Valid && failures.String != "" {
		if err := json.Unmarshal([]byte(failures.String), &run.Failures); err != nil {
			return nil, fmt.Errorf("decoding failures for run %s: %w", run.ID, err)
		}
	}

	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing run timestamp %q: %w", startedAt, err)
	}
	run.StartedAt = t
	return &run, nil
}
