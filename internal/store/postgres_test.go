package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"athena-query-scheduler/internal/models"
)

// Runs against a real database only when POSTGRES_TEST_DSN is set.
func TestRunHistory(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	st, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer st.Close()
	if err := st.RunMigrations(ctx); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	run := models.Run{ID: uuid.New().String(), Scenario: "foo", Workers: 2, StartedAt: time.Now().UTC()}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	for _, o := range []models.Outcome{
		{TaskID: "user", Status: models.OutcomeSucceeded, Location: "output/foo/user.csv", Rows: 3, RecordedAt: time.Now().UTC()},
		{TaskID: "transaction", Status: models.OutcomeFailed, Detail: "boom", RecordedAt: time.Now().UTC()},
	} {
		if err := st.AppendOutcome(ctx, run.ID, o); err != nil {
			t.Fatalf("append outcome: %v", err)
		}
	}
	run.Status, run.Succeeded, run.Failed = models.RunStatusFinished, 1, 1
	if err := st.FinishRun(ctx, run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != models.RunStatusFinished || got.Succeeded != 1 || got.Failed != 1 || got.FinishedAt == nil {
		t.Fatalf("unexpected run: %+v", got)
	}
	if len(got.Outcomes) != 2 || got.Outcomes[0].TaskID != "user" || got.Outcomes[1].Detail != "boom" {
		t.Fatalf("unexpected outcomes: %+v", got.Outcomes)
	}

	if _, err := st.GetRun(ctx, uuid.New().String()); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
