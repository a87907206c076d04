// Package athenatest provides an in-memory query service for tests.
package athenatest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"athena-query-scheduler/internal/models"
)

// Result scripts how the fake answers a statement.
type Result struct {
	// Pending is the number of RUNNING polls before the terminal state.
	Pending   int
	State     models.JobState
	Rows      []models.RawRow
	SubmitErr error
	Reason    string
}

type job struct {
	sql    string
	result Result
	polls  int
}

// Service matches each submitted statement against registered substrings in
// registration order. Unmatched statements succeed with a header-only result.
type Service struct {
	mu        sync.Mutex
	routes    []route
	jobs      map[string]*job
	submitted []string
	stopped   []string
	seq       int
}

type route struct {
	match  string
	result Result
}

func New() *Service {
	return &Service{jobs: make(map[string]*job)}
}

// On registers r for statements containing match.
func (s *Service) On(match string, r Result) *Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, route{match: match, result: r})
	return s
}

// Submitted returns every statement in submission order.
func (s *Service) Submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.submitted...)
}

// Stopped returns the ids passed to Stop.
func (s *Service) Stopped() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stopped...)
}

func (s *Service) Submit(_ context.Context, sql string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, sql)
	r := Result{State: models.StateSucceeded, Rows: []models.RawRow{{Cell("result")}}}
	for _, rt := range s.routes {
		if strings.Contains(sql, rt.match) {
			r = rt.result
			break
		}
	}
	if r.SubmitErr != nil {
		return "", r.SubmitErr
	}
	s.seq++
	id := fmt.Sprintf("job-%d", s.seq)
	s.jobs[id] = &job{sql: sql, result: r}
	return id, nil
}

func (s *Service) Status(_ context.Context, id string) (models.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return models.JobStatus{}, errors.New("unknown job " + id)
	}
	j.polls++
	if j.polls <= j.result.Pending {
		return models.JobStatus{State: models.StateRunning}, nil
	}
	state := j.result.State
	if state == "" {
		state = models.StateSucceeded
	}
	return models.JobStatus{State: state, Reason: j.result.Reason}, nil
}

func (s *Service) Fetch(_ context.Context, id string) ([]models.RawRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("unknown job " + id)
	}
	return j.result.Rows, nil
}

func (s *Service) Stop(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, id)
	return nil
}

// Cell returns a pointer to v.
func Cell(v string) *string { return &v }

// Rows builds a raw result from a header and string rows. "NULL" becomes a nil cell.
func Rows(header []string, data ...[]string) []models.RawRow {
	out := make([]models.RawRow, 0, len(data)+1)
	h := make(models.RawRow, len(header))
	for i, c := range header {
		h[i] = Cell(c)
	}
	out = append(out, h)
	for _, d := range data {
		row := make(models.RawRow, len(d))
		for i, c := range d {
			if c != "NULL" {
				row[i] = Cell(c)
			}
		}
		out = append(out, row)
	}
	return out
}

// NoSleep skips poll waits.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
