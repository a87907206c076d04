package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"athena-query-scheduler/internal/models"
	"athena-query-scheduler/internal/runner"
	"athena-query-scheduler/internal/store"
)

type fakeRunner struct {
	release chan struct{}
}

func (f *fakeRunner) Scenarios() []string { return []string{"bar", "foo"} }

func (f *fakeRunner) Validate(req runner.Request) error {
	if req.Scenario != "foo" && req.Scenario != "bar" {
		return runner.ErrInvalidRequest
	}
	return nil
}

func (f *fakeRunner) Run(ctx context.Context, req runner.Request) (models.Run, error) {
	if f.release != nil {
		<-f.release
	}
	return models.Run{ID: req.RunID, Scenario: req.Scenario, Status: models.RunStatusFinished, Succeeded: 2}, nil
}

type fakeStore map[string]models.Run

func (f fakeStore) GetRun(_ context.Context, id string) (models.Run, error) {
	run, ok := f[id]
	if !ok {
		return models.Run{}, store.ErrRunNotFound
	}
	return run, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, float64, error) { return false, 0, nil }

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, float64, error) {
	return false, 0, errors.New("redis down")
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndScenarios(t *testing.T) {
	h := New(context.Background(), &fakeRunner{}, nil, nil, nil).Router()

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/scenarios", "")
	var body struct {
		Scenarios []string `json:"scenarios"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Scenarios) != 2 || body.Scenarios[1] != "foo" {
		t.Fatalf("unexpected scenarios: %v", body.Scenarios)
	}
}

func TestStartRunAndPoll(t *testing.T) {
	fr := &fakeRunner{release: make(chan struct{})}
	srv := New(context.Background(), fr, nil, nil, nil)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/runs", `{"scenario":"foo","workers":2}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var started models.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.Status != models.RunStatusRunning || started.ID == "" {
		t.Fatalf("unexpected run: %+v", started)
	}

	rec = do(t, h, http.MethodGet, "/runs/"+started.ID, "")
	var got models.Run
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != models.RunStatusRunning {
		t.Fatalf("expected running, got %s", got.Status)
	}

	close(fr.release)
	srv.Wait()

	rec = do(t, h, http.MethodGet, "/runs/"+started.ID, "")
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != models.RunStatusFinished || got.Succeeded != 2 {
		t.Fatalf("unexpected finished run: %+v", got)
	}
}

func TestStartRunRejects(t *testing.T) {
	h := New(context.Background(), &fakeRunner{}, nil, nil, nil).Router()
	cases := map[string]string{
		"bad json": `{`,
		"missing":  `{}`,
		"unknown":  `{"scenario":"nope"}`,
	}
	for name, body := range cases {
		if rec := do(t, h, http.MethodPost, "/runs", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}

	limited := New(context.Background(), &fakeRunner{}, nil, denyAll{}, nil).Router()
	if rec := do(t, limited, http.MethodPost, "/runs", `{"scenario":"foo"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	broken := New(context.Background(), &fakeRunner{}, nil, brokenLimiter{}, nil).Router()
	if rec := do(t, broken, http.MethodPost, "/runs", `{"scenario":"foo"}`); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestGetRunFromStore(t *testing.T) {
	id := "6f1c2f7e-5a0b-4a4e-9a39-2a7d8d1b0c11"
	st := fakeStore{id: {ID: id, Scenario: "bar", Status: models.RunStatusFinished}}
	h := New(context.Background(), &fakeRunner{}, st, nil, nil).Router()

	if rec := do(t, h, http.MethodGet, "/runs/"+id, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/runs/not-a-uuid", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for bad id, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/runs/0b7f3c52-6c0e-4d2a-8a5b-3f7e2d9c4a10", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", rec.Code)
	}
}
