// Package scenario defines named task sets and the parameters they read.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"athena-query-scheduler/internal/chain"
	"athena-query-scheduler/internal/models"
	"athena-query-scheduler/internal/params"
	"athena-query-scheduler/internal/scheduler"
	"athena-query-scheduler/internal/sqlbuild"
)

// ErrUnknownScenario is returned by Lookup.
var ErrUnknownScenario = errors.New("unknown scenario")

// Env is passed to a scenario when it builds tasks. Params is private to one run.
type Env struct {
	Params   *params.Store
	Exec     chain.Runner
	Chain    *chain.Executor
	Database string
}

// Table qualifies name with the configured database.
func (e Env) Table(name string) string {
	if e.Database == "" {
		return name
	}
	return e.Database + "." + name
}

// Scenario declares its parameter keys, seeds them in Setup and builds tasks that
// read the store when they run, not when they are built.
type Scenario struct {
	Name        string
	Description string
	Keys        []string
	Setup       func(p *params.Store) error
	Tasks       func(env Env) []scheduler.Task
}

// Build creates the run's parameter store, seeds it and returns the tasks.
func (s Scenario) Build(exec chain.Runner, chainExec *chain.Executor, database string) ([]scheduler.Task, *params.Store, error) {
	store := params.New(s.Keys...)
	if s.Setup != nil {
		if err := s.Setup(store); err != nil {
			return nil, nil, fmt.Errorf("setup scenario %s: %w", s.Name, err)
		}
	}
	env := Env{Params: store, Exec: exec, Chain: chainExec, Database: database}
	return s.Tasks(env), store, nil
}

// Registry maps names to scenarios.
type Registry struct {
	mu        sync.RWMutex
	scenarios map[string]Scenario
}

func NewRegistry() *Registry {
	return &Registry{scenarios: make(map[string]Scenario)}
}

// Default returns a registry holding the built-in scenarios.
func Default() *Registry {
	r := NewRegistry()
	for _, s := range []Scenario{Foo(), Bar(), GroupChain()} {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Register(s Scenario) error {
	if s.Name == "" || s.Tasks == nil {
		return errors.New("scenario needs a name and a task builder")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scenarios[s.Name]; ok {
		return fmt.Errorf("scenario %q already registered", s.Name)
	}
	r.scenarios[s.Name] = s
	return nil
}

func (r *Registry) Lookup(name string) (Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scenarios[name]
	if !ok {
		return Scenario{}, fmt.Errorf("%q: %w", name, ErrUnknownScenario)
	}
	return s, nil
}

// Names lists registered scenarios alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scenarios))
	for n := range r.scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// query renders build's spec when the task starts, so it sees parameter values
// stored by tasks that finished before it.
func query(env Env, id string, build func(p *params.Store) (sqlbuild.QuerySpec, error)) scheduler.Task {
	return scheduler.Task{ID: id, Run: func(ctx context.Context) (models.Table, error) {
		spec, err := build(env.Params)
		if err != nil {
			return models.Table{}, err
		}
		return env.Exec.Execute(ctx, spec.SQL())
	}}
}
