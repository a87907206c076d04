// Package executor runs one statement end to end: submit, wait, fetch, materialize.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"athena-query-scheduler/internal/athena"
	"athena-query-scheduler/internal/config"
	"athena-query-scheduler/internal/logger"
	"athena-query-scheduler/internal/materialize"
	"athena-query-scheduler/internal/models"
	"athena-query-scheduler/internal/sqlbuild"
)

// ErrQueryFailed wraps jobs that ended FAILED or CANCELLED.
var ErrQueryFailed = errors.New("query failed")

// Options tune every job the executor starts.
type Options struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	CancelOnTimeout bool
	Limiter         athena.Limiter
	LimitKey        string
	// Sleep overrides the wait between polls; nil uses a real timer.
	Sleep func(context.Context, time.Duration) error
}

// OptionsFromConfig maps the poll settings from cfg.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		MaxAttempts:     cfg.PollMaxAttempts,
		InitialDelay:    cfg.PollInitialDelay,
		CancelOnTimeout: cfg.CancelOnTimeout,
		LimitKey:        cfg.AthenaWorkGroup,
	}
}

// Executor is safe for concurrent use: each call gets its own athena.Client.
type Executor struct {
	svc    athena.Service
	opts   Options
	logger *slog.Logger
}

func New(svc athena.Service, opts Options, log *slog.Logger) *Executor {
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{svc: svc, opts: opts, logger: log}
}

// Query renders spec and executes it.
func (e *Executor) Query(ctx context.Context, spec sqlbuild.QuerySpec) (models.Table, error) {
	return e.Execute(ctx, spec.SQL())
}

// Execute runs sql on a fresh client. A result with no rows at all, not even a
// header, is logged and returned as a table without columns.
func (e *Executor) Execute(ctx context.Context, sql string) (models.Table, error) {
	client := athena.NewClient(e.svc, e.clientOptions()...)

	job, err := client.Submit(ctx, sql)
	if err != nil {
		return models.Table{}, err
	}

	state, err := client.AwaitCompletion(ctx, e.opts.MaxAttempts, e.opts.InitialDelay)
	if err != nil {
		return models.Table{}, err
	}
	switch state {
	case models.StateSucceeded:
	case models.StateTimedOut:
		return models.Table{}, fmt.Errorf("job %s: %w", job.ID, athena.ErrPollTimeout)
	default:
		return models.Table{}, fmt.Errorf("job %s ended %s: %s: %w", job.ID, state, client.Job().Reason, ErrQueryFailed)
	}

	rows, err := client.FetchResults(ctx)
	if err != nil {
		return models.Table{}, err
	}
	table, err := materialize.ToTable(rows)
	if errors.Is(err, materialize.ErrEmptyResult) {
		e.logger.Warn("no data returned", "job_id", job.ID)
		return models.Table{}, nil
	}
	if err != nil {
		return models.Table{}, fmt.Errorf("materialize %s: %w", job.ID, err)
	}
	e.logger.Debug("query materialized", "job_id", job.ID, "columns", len(table.Columns), "rows", len(table.Rows))
	return table, nil
}

func (e *Executor) clientOptions() []athena.Option {
	opts := []athena.Option{
		athena.WithLogger(e.logger),
		athena.WithCancelOnTimeout(e.opts.CancelOnTimeout),
		athena.WithSleep(e.opts.Sleep),
	}
	if e.opts.Limiter != nil {
		opts = append(opts, athena.WithLimiter(e.opts.Limiter, e.opts.LimitKey))
	}
	return opts
}
