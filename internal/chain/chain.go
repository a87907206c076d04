// Package chain runs queries in sequence, filtering each step by values taken from
// the result of the step before it.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"athena-query-scheduler/internal/logger"
	"athena-query-scheduler/internal/models"
	"athena-query-scheduler/internal/params"
	"athena-query-scheduler/internal/sqlbuild"
	"athena-query-scheduler/internal/telemetry"
)

// ErrChainBroken is returned when a step fails or leaves nothing to carry forward.
var ErrChainBroken = errors.New("chain broken")

// Mode selects which prior-result values filter the next step.
type Mode int

const (
	// ModeAllColumns carries every cell of the prior table.
	ModeAllColumns Mode = iota
	// ModeCarryColumn carries only the prior step's CarryColumn.
	ModeCarryColumn
)

func (m Mode) String() string {
	if m == ModeCarryColumn {
		return "column"
	}
	return "all"
}

// ParseMode accepts "all" or "column".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "":
		return ModeAllColumns, nil
	case "column":
		return ModeCarryColumn, nil
	}
	return 0, fmt.Errorf("unknown chain mode %q", s)
}

// Step is one query in a chain. Either Spec or Statement is set; a prebuilt
// Statement cannot be rewritten and is only allowed as the first step.
type Step struct {
	Spec      sqlbuild.QuerySpec
	Statement string
	// DependantField is the column of this step matched against the prior values.
	DependantField string
	// CarryColumn is the column of this step's result handed to the next step in
	// ModeCarryColumn.
	CarryColumn string
}

// Runner executes one statement to a table. executor.Executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, sql string) (models.Table, error)
}

// Executor runs chains. It holds no per-run state.
type Executor struct {
	runner Runner
	mode   Mode
	logger *slog.Logger
}

func New(runner Runner, mode Mode, log *slog.Logger) *Executor {
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{runner: runner, mode: mode, logger: log}
}

// Mode reports how values are carried between steps.
func (e *Executor) Mode() Mode {
	return e.mode
}

// Validate checks the whole chain before anything runs.
func (e *Executor) Validate(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("empty chain: %w", models.ErrTypeMismatch)
	}
	last := len(steps) - 1
	for i, s := range steps {
		hasSpec, hasStmt := s.Spec.Table != "", strings.TrimSpace(s.Statement) != ""
		switch {
		case hasSpec == hasStmt:
			return fmt.Errorf("step %d needs exactly one of spec or statement: %w", i+1, models.ErrTypeMismatch)
		case i > 0 && hasStmt:
			return fmt.Errorf("step %d: prebuilt statement cannot take a dependant filter: %w", i+1, models.ErrTypeMismatch)
		case i > 0 && s.DependantField == "":
			return fmt.Errorf("step %d has no dependant field: %w", i+1, models.ErrTypeMismatch)
		case e.mode == ModeCarryColumn && i < last && s.CarryColumn == "":
			return fmt.Errorf("step %d has no carry column: %w", i+1, models.ErrTypeMismatch)
		}
	}
	return nil
}

// Run executes steps strictly in order and returns the final step's table. When the
// prior table has rows, the step gets a LIKE_ANY filter on its DependantField; a prior
// table with columns but no rows leaves the step unfiltered. Any failure aborts the chain.
func (e *Executor) Run(ctx context.Context, steps []Step) (models.Table, error) {
	if err := e.Validate(steps); err != nil {
		return models.Table{}, err
	}

	last := len(steps) - 1
	var prior models.Table
	for i, step := range steps {
		sql := step.Statement
		if step.Spec.Table != "" {
			spec := step.Spec
			if i > 0 && !prior.Empty() {
				values, err := e.carry(prior, steps[i-1])
				if err != nil {
					return models.Table{}, fmt.Errorf("step %d: %w", i+1, err)
				}
				spec = spec.Where(sqlbuild.LikeAny(step.DependantField, values...))
			}
			sql = spec.SQL()
		}

		e.logger.Debug("chain step", "step", i+1, "of", len(steps), "mode", e.mode)
		telemetry.ChainSteps.Inc()
		table, err := e.runner.Execute(ctx, sql)
		if err != nil {
			return models.Table{}, fmt.Errorf("step %d: %w: %w", i+1, ErrChainBroken, err)
		}
		if i < last && len(table.Columns) == 0 {
			return models.Table{}, fmt.Errorf("step %d returned no columns: %w", i+1, ErrChainBroken)
		}
		prior = table
	}
	return prior, nil
}

func (e *Executor) carry(prior models.Table, prev Step) ([]string, error) {
	var values []string
	if e.mode == ModeCarryColumn {
		idx := prior.ColumnIndex(prev.CarryColumn)
		if idx < 0 {
			return nil, fmt.Errorf("carry column %q not in result: %w", prev.CarryColumn, ErrChainBroken)
		}
		values = prior.Values(idx)
	} else {
		for i := range prior.Columns {
			values = append(values, prior.Values(i)...)
		}
	}
	return dedupe(values), nil
}

// Dependant is a parent statement whose columns are written into a parameter before
// Child runs. Child typically builds its query from that parameter.
type Dependant struct {
	Parent  string
	Columns []string
	Params  *params.Store
	Key     string
	Child   func(ctx context.Context) (models.Table, error)
}

// RunDependant executes the parent, stores the values of Columns under Key and
// returns the child's table.
func (e *Executor) RunDependant(ctx context.Context, d Dependant) (models.Table, error) {
	if d.Parent == "" || d.Params == nil || d.Child == nil || len(d.Columns) == 0 {
		return models.Table{}, fmt.Errorf("incomplete dependant: %w", models.ErrTypeMismatch)
	}
	parent, err := e.runner.Execute(ctx, d.Parent)
	if err != nil {
		return models.Table{}, fmt.Errorf("parent query: %w: %w", ErrChainBroken, err)
	}

	var values []string
	for _, col := range d.Columns {
		idx := parent.ColumnIndex(col)
		if idx < 0 {
			return models.Table{}, fmt.Errorf("column %q not in parent result: %w", col, ErrChainBroken)
		}
		values = append(values, parent.Values(idx)...)
	}
	if err := d.Params.Set(d.Key, values...); err != nil {
		return models.Table{}, err
	}
	e.logger.Debug("dependant values stored", "key", d.Key, "count", len(values))
	return d.Child(ctx)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
