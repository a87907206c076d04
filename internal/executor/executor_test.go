package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"athena-query-scheduler/internal/athena"
	"athena-query-scheduler/internal/athena/athenatest"
	"athena-query-scheduler/internal/models"
	"athena-query-scheduler/internal/sqlbuild"
)

func newExecutor(svc athena.Service) *Executor {
	return New(svc, Options{MaxAttempts: 3, Sleep: athenatest.NoSleep}, nil)
}

func TestExecuteSucceeded(t *testing.T) {
	svc := athenatest.New().On("database.user", athenatest.Result{
		Pending: 2,
		State:   models.StateSucceeded,
		Rows:    athenatest.Rows([]string{"id", "name"}, []string{"1", "alice"}, []string{"2", "NULL"}),
	})
	table, err := newExecutor(svc).Query(context.Background(), sqlbuild.Select("database.user"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Nil(t, table.Rows[1][1])
	assert.Equal(t, []string{"SELECT * FROM database.user LIMIT 50"}, svc.Submitted())
}

func TestExecuteFailures(t *testing.T) {
	svc := athenatest.New().
		On("failed", athenatest.Result{State: models.StateFailed, Reason: "SYNTAX_ERROR"}).
		On("cancelled", athenatest.Result{State: models.StateCancelled}).
		On("slow", athenatest.Result{Pending: 10}).
		On("rejected", athenatest.Result{SubmitErr: errors.New("throttled")})
	exec := newExecutor(svc)
	ctx := context.Background()

	_, err := exec.Execute(ctx, "SELECT failed")
	require.ErrorIs(t, err, ErrQueryFailed)
	assert.Contains(t, err.Error(), "SYNTAX_ERROR")

	_, err = exec.Execute(ctx, "SELECT cancelled")
	require.ErrorIs(t, err, ErrQueryFailed)

	_, err = exec.Execute(ctx, "SELECT slow")
	require.ErrorIs(t, err, athena.ErrPollTimeout)

	_, err = exec.Execute(ctx, "SELECT rejected")
	require.ErrorIs(t, err, athena.ErrSubmission)
}

func TestExecuteEmptyResult(t *testing.T) {
	svc := athenatest.New().On("empty", athenatest.Result{State: models.StateSucceeded})
	table, err := newExecutor(svc).Execute(context.Background(), "SELECT empty")
	require.NoError(t, err)
	assert.Empty(t, table.Columns)
	assert.True(t, table.Empty())
}

func TestExecuteCancelOnTimeout(t *testing.T) {
	svc := athenatest.New().On("slow", athenatest.Result{Pending: 10})
	exec := New(svc, Options{MaxAttempts: 2, CancelOnTimeout: true, Sleep: athenatest.NoSleep}, nil)
	_, err := exec.Execute(context.Background(), "SELECT slow")
	require.ErrorIs(t, err, athena.ErrPollTimeout)
	assert.Equal(t, []string{"job-1"}, svc.Stopped())
}
