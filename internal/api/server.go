package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"athena-query-scheduler/internal/logger"
	"athena-query-scheduler/internal/models"
	"athena-query-scheduler/internal/runner"
	"athena-query-scheduler/internal/store"
	"athena-query-scheduler/internal/telemetry"
)

// Runner executes scenario runs. runner.Service satisfies it.
type Runner interface {
	Scenarios() []string
	Validate(req runner.Request) error
	Run(ctx context.Context, req runner.Request) (models.Run, error)
}

// RunStore reads persisted runs. store.Store satisfies it.
type RunStore interface {
	GetRun(ctx context.Context, id string) (models.Run, error)
}

// Limiter throttles run requests per tenant. ratelimit.TokenBucket satisfies it.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// Server wires HTTP handlers for starting scenario runs and reading their results.
// Runs started here outlive the request; they use the context given to New.
type Server struct {
	ctx     context.Context
	runner  Runner
	store   RunStore
	limiter Limiter
	logger  *slog.Logger

	mu   sync.Mutex
	runs map[string]models.Run
	wg   sync.WaitGroup
}

// New constructs the API server. st and limiter may be nil.
func New(ctx context.Context, r Runner, st RunStore, limiter Limiter, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		ctx:     ctx,
		runner:  r,
		store:   st,
		limiter: limiter,
		logger:  log,
		runs:    make(map[string]models.Run),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/scenarios", s.handleScenarios)
	r.Post("/runs", s.handleStartRun)
	r.Get("/runs/{id}", s.handleGetRun)
	return r
}

// Wait blocks until every run started by the server has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

type runRequest struct {
	Scenario string `json:"scenario"`
	Workers  int    `json:"workers"`
	Prefix   string `json:"prefix"`
}

func (s *Server) handleScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": s.runner.Scenarios()})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if body.Scenario == "" {
		http.Error(w, "scenario is required", http.StatusBadRequest)
		return
	}
	req := runner.Request{
		RunID:    uuid.NewString(),
		Scenario: body.Scenario,
		Workers:  body.Workers,
		Prefix:   body.Prefix,
	}
	if err := s.runner.Validate(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tenant := tenantFromRequest(r)
	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), fmt.Sprintf("rl:%s", tenant))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	run := models.Run{
		ID:        req.RunID,
		Scenario:  req.Scenario,
		Workers:   req.Workers,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.remember(run)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		done, err := s.runner.Run(s.ctx, req)
		if err != nil {
			s.logger.Error("run failed", "run", req.RunID, "tenant", tenant, "err", err)
			if done.ID == "" {
				msg := err.Error()
				done = run
				done.Status = models.RunStatusFailed
				done.LastError = &msg
			}
		}
		s.remember(done)
	}()

	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	run, ok := s.runs[id]
	s.mu.Unlock()
	if ok {
		writeJSON(w, http.StatusOK, run)
		return
	}
	if s.store == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) remember(run models.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
