package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"athena-query-scheduler/internal/models"
)

// ErrRunNotFound is returned by GetRun for unknown ids.
var ErrRunNotFound = errors.New("run not found")

// Store keeps run history in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateRun inserts a run in the running state.
func (s *Store) CreateRun(ctx context.Context, run models.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO query_runs (id, scenario, workers, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.Scenario, run.Workers, models.RunStatusRunning, run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// AppendOutcome records one task outcome for a run.
func (s *Store) AppendOutcome(ctx context.Context, runID string, o models.Outcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_outcomes (run_id, task_id, status, detail, location, row_count, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, runID, o.TaskID, o.Status, emptyToNil(o.Detail), emptyToNil(o.Location), o.Rows, o.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishRun stores the final status and counters.
func (s *Store) FinishRun(ctx context.Context, run models.Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE query_runs
		SET status = $2, succeeded = $3, failed = $4, last_error = $5, finished_at = $6
		WHERE id = $1
	`, run.ID, run.Status, run.Succeeded, run.Failed, run.LastError, finished)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun fetches a run and its outcomes in the order they were recorded.
func (s *Store) GetRun(ctx context.Context, id string) (models.Run, error) {
	var run models.Run
	var lastErr pgtype.Text
	var finished pgtype.Timestamptz
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, scenario, workers, status, succeeded, failed, last_error, started_at, finished_at
		FROM query_runs WHERE id = $1
	`, id).Scan(&run.ID, &run.Scenario, &run.Workers, &run.Status, &run.Succeeded, &run.Failed, &lastErr, &run.StartedAt, &finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Run{}, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return models.Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.LastError = textPtr(lastErr)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}

	rows, err := s.pool.Query(ctx, `
		SELECT task_id, status, detail, location, row_count, recorded_at
		FROM task_outcomes WHERE run_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return models.Run{}, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o models.Outcome
		var detail, location pgtype.Text
		if err := rows.Scan(&o.TaskID, &o.Status, &detail, &location, &o.Rows, &o.RecordedAt); err != nil {
			return models.Run{}, fmt.Errorf("scan outcome: %w", err)
		}
		o.Detail = detail.String
		o.Location = location.String
		run.Outcomes = append(run.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return models.Run{}, fmt.Errorf("iterate outcomes: %w", err)
	}
	return run, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
