// Package runner executes one scenario end to end: build tasks, schedule them, record
// outcomes and optionally export the written results.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"athena-query-scheduler/internal/chain"
	"athena-query-scheduler/internal/logger"
	"athena-query-scheduler/internal/models"
	"athena-query-scheduler/internal/scenario"
	"athena-query-scheduler/internal/scheduler"
	"athena-query-scheduler/internal/sink"
)

// ErrInvalidRequest is returned for requests rejected before anything runs.
var ErrInvalidRequest = errors.New("invalid run request")

// History records runs. store.Store satisfies it.
type History interface {
	CreateRun(ctx context.Context, run models.Run) error
	AppendOutcome(ctx context.Context, runID string, o models.Outcome) error
	FinishRun(ctx context.Context, run models.Run) error
}

// Request describes one run. Workers <= 0 means scheduler.DefaultWorkers. When
// ExportDir is set the scenario's output tree is copied there after the run; Prefix
// names the result files and restricts the export to them.
type Request struct {
	RunID     string
	Scenario  string
	Workers   int
	ExportDir string
	Prefix    string
}

// Service wires scenarios to the query executor, the chain executor and the sink.
type Service struct {
	registry  *scenario.Registry
	runner    chain.Runner
	chain     *chain.Executor
	sink      scheduler.Sink
	outputDir string
	database  string
	history   History
	logger    *slog.Logger
}

type Option func(*Service)

func WithHistory(h History) Option {
	return func(s *Service) { s.history = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOutput sets the sink results are written through and the local directory
// that export copies from.
func WithOutput(w scheduler.Sink, outputDir string) Option {
	return func(s *Service) {
		s.sink = w
		s.outputDir = outputDir
	}
}

// WithDatabase qualifies scenario tables with database.
func WithDatabase(database string) Option {
	return func(s *Service) { s.database = database }
}

func New(registry *scenario.Registry, runner chain.Runner, mode chain.Mode, opts ...Option) *Service {
	s := &Service{registry: registry, runner: runner, logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	s.chain = chain.New(runner, mode, s.logger)
	return s
}

// Scenarios lists the names a Request may use.
func (s *Service) Scenarios() []string {
	return s.registry.Names()
}

// Validate checks a request without running it.
func (s *Service) Validate(req Request) error {
	if strings.ContainsAny(req.Prefix, `/\`) || req.Prefix == "." || req.Prefix == ".." {
		return fmt.Errorf("prefix %q must be a file name prefix, not a path: %w", req.Prefix, ErrInvalidRequest)
	}
	if req.ExportDir != "" && s.outputDir == "" {
		return fmt.Errorf("export needs a local output directory: %w", ErrInvalidRequest)
	}
	if _, err := s.registry.Lookup(req.Scenario); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Run executes the scenario and returns the finished run. Task failures are part of
// the returned run, not errors; the error covers invalid requests, scenario setup,
// task validation, history and export failures.
func (s *Service) Run(ctx context.Context, req Request) (models.Run, error) {
	if err := s.Validate(req); err != nil {
		return models.Run{}, err
	}
	sc, _ := s.registry.Lookup(req.Scenario)

	workers := req.Workers
	if workers <= 0 {
		workers = scheduler.DefaultWorkers
	}
	run := models.Run{
		ID:        req.RunID,
		Scenario:  sc.Name,
		Workers:   workers,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	log := s.logger.With("run", run.ID, "scenario", sc.Name)

	if s.history != nil {
		if err := s.history.CreateRun(ctx, run); err != nil {
			return run, err
		}
	}

	tasks, _, err := sc.Build(s.runner, s.chain, s.database)
	if err != nil {
		return s.fail(ctx, log, run, err)
	}

	opts := []scheduler.Option{
		scheduler.WithLogger(log),
	}
	if s.history != nil {
		opts = append(opts, scheduler.WithObserver(func(o models.Outcome) {
			if err := s.history.AppendOutcome(ctx, run.ID, o); err != nil {
				log.Warn("record outcome", "task", o.TaskID, "err", err)
			}
		}))
	}
	if s.sink != nil {
		opts = append(opts, scheduler.WithSink(s.sink, sc.Name, req.Prefix))
	}

	log.Info("run started", "tasks", len(tasks), "workers", workers)
	outcomes, err := scheduler.New(opts...).Run(ctx, tasks, workers)
	if err != nil {
		return s.fail(ctx, log, run, err)
	}

	run.Outcomes = outcomes
	for _, o := range outcomes {
		if o.Failed() {
			run.Failed++
			detail := o.String()
			run.LastError = &detail
		} else {
			run.Succeeded++
		}
	}
	run.Status = models.RunStatusFinished
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	log.Info("run finished", "succeeded", run.Succeeded, "failed", run.Failed, "took", finished.Sub(run.StartedAt))

	if s.history != nil {
		if err := s.history.FinishRun(ctx, run); err != nil {
			return run, err
		}
	}

	if req.ExportDir != "" {
		n, err := sink.Export(filepath.Join(s.outputDir, sc.Name), req.ExportDir, req.Prefix)
		if err != nil {
			return run, err
		}
		log.Info("results exported", "target", req.ExportDir, "files", n)
	}
	return run, nil
}

func (s *Service) fail(ctx context.Context, log *slog.Logger, run models.Run, cause error) (models.Run, error) {
	msg := cause.Error()
	finished := time.Now().UTC()
	run.Status = models.RunStatusFailed
	run.LastError = &msg
	run.FinishedAt = &finished
	log.Error("run failed", "err", cause)
	if s.history != nil {
		if err := s.history.FinishRun(ctx, run); err != nil {
			log.Warn("record failed run", "err", err)
		}
	}
	return run, cause
}
