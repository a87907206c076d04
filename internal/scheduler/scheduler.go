// Package scheduler runs independent query tasks on a bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"athena-query-scheduler/internal/logger"
	"athena-query-scheduler/internal/models"
	"athena-query-scheduler/internal/telemetry"
)

// DefaultWorkers is used when Run is given a non-positive worker count.
const DefaultWorkers = 6

// Task is one unit of work producing a table.
type Task struct {
	ID  string
	Run func(ctx context.Context) (models.Table, error)
}

// Sink persists the table of a successful task. Implementations are called from
// several workers at once with distinct names.
type Sink interface {
	Write(ctx context.Context, table models.Table, dir, name string) (string, error)
}

// Scheduler runs task sets. The zero configuration discards results.
type Scheduler struct {
	sink     Sink
	dir      string
	prefix   string
	observer func(models.Outcome)
	logger   *slog.Logger
}

type Option func(*Scheduler)

// WithSink writes each successful table under dir, named "<prefix>_<task id>" or
// just the task id when prefix is empty.
func WithSink(sink Sink, dir, prefix string) Option {
	return func(s *Scheduler) {
		s.sink = sink
		s.dir = dir
		s.prefix = prefix
	}
}

// WithObserver is called once per outcome, in completion order, as tasks finish.
func WithObserver(fn func(models.Outcome)) Option {
	return func(s *Scheduler) { s.observer = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate rejects tasks without an id or function, and duplicate ids.
func Validate(tasks []Task) error {
	seen := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		if t.ID == "" || t.Run == nil {
			return fmt.Errorf("task %d needs an id and a function: %w", i, models.ErrTypeMismatch)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate task id %q: %w", t.ID, models.ErrTypeMismatch)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// Run executes every task with at most workers running at once and returns one
// outcome per task in completion order. A failing or panicking task is recorded and
// never affects its siblings. The only error is a validation failure, reported
// before any task starts.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, workers int) ([]models.Outcome, error) {
	if err := Validate(tasks); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var (
		mu       sync.Mutex
		outcomes = make([]models.Outcome, 0, len(tasks))
	)
	var g errgroup.Group
	g.SetLimit(workers)
	for _, task := range tasks {
		g.Go(func() error {
			o := s.runOne(ctx, task)
			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, o)
			if s.observer != nil {
				s.observer(o)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

func (s *Scheduler) runOne(ctx context.Context, task Task) (o models.Outcome) {
	o.TaskID = task.ID
	defer func() {
		if r := recover(); r != nil {
			o = failed(task.ID, fmt.Errorf("panic: %v", r))
		}
		if o.Failed() {
			telemetry.TaskFailures.Inc()
			s.logger.Error(o.String())
		} else {
			telemetry.TaskSuccess.Inc()
			s.logger.Info("task succeeded", "task", task.ID, "rows", o.Rows, "location", o.Location)
		}
	}()

	table, err := task.Run(ctx)
	if err != nil {
		return failed(task.ID, err)
	}
	var location string
	if s.sink != nil {
		location, err = s.sink.Write(ctx, table, s.dir, s.fileName(task.ID))
		if err != nil {
			return failed(task.ID, fmt.Errorf("write result: %w", err))
		}
	}
	return models.Outcome{
		TaskID:     task.ID,
		Status:     models.OutcomeSucceeded,
		Location:   location,
		Rows:       len(table.Rows),
		RecordedAt: time.Now().UTC(),
	}
}

func (s *Scheduler) fileName(id string) string {
	if s.prefix == "" {
		return id
	}
	return s.prefix + "_" + id
}

func failed(id string, err error) models.Outcome {
	return models.Outcome{
		TaskID:     id,
		Status:     models.OutcomeFailed,
		Detail:     err.Error(),
		RecordedAt: time.Now().UTC(),
	}
}
