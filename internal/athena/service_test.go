package athena

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"athena-query-scheduler/internal/models"
)

type fakeAthenaAPI struct {
	started  *athena.StartQueryExecutionInput
	startErr error
	state    types.QueryExecutionState
	reason   *string
	pages    map[string]*athena.GetQueryResultsOutput
	stopped  string
}

func (f *fakeAthenaAPI) StartQueryExecution(_ context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.started = in
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("exec-1")}, nil
}

func (f *fakeAthenaAPI) GetQueryExecution(_ context.Context, _ *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	return &athena.GetQueryExecutionOutput{QueryExecution: &types.QueryExecution{
		Status: &types.QueryExecutionStatus{State: f.state, StateChangeReason: f.reason},
	}}, nil
}

func (f *fakeAthenaAPI) GetQueryResults(_ context.Context, in *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	return f.pages[aws.ToString(in.NextToken)], nil
}

func (f *fakeAthenaAPI) StopQueryExecution(_ context.Context, in *athena.StopQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error) {
	f.stopped = aws.ToString(in.QueryExecutionId)
	return &athena.StopQueryExecutionOutput{}, nil
}

func datumRow(vals ...*string) types.Row {
	row := types.Row{}
	for _, v := range vals {
		row.Data = append(row.Data, types.Datum{VarCharValue: v})
	}
	return row
}

func TestAWSServiceSubmit(t *testing.T) {
	api := &fakeAthenaAPI{}
	svc := newAWSService(api, "poweruser", "s3://results/")

	id, err := svc.Submit(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", id)
	assert.Equal(t, "SELECT 1", aws.ToString(api.started.QueryString))
	assert.Equal(t, "poweruser", aws.ToString(api.started.WorkGroup))
	require.NotNil(t, api.started.ResultConfiguration)
	assert.Equal(t, "s3://results/", aws.ToString(api.started.ResultConfiguration.OutputLocation))

	api.startErr = errors.New("denied")
	_, err = svc.Submit(context.Background(), "SELECT 1")
	require.Error(t, err)
}

func TestAWSServiceStatus(t *testing.T) {
	cases := map[types.QueryExecutionState]models.JobState{
		types.QueryExecutionStateQueued:    models.StatePending,
		types.QueryExecutionStateRunning:   models.StateRunning,
		types.QueryExecutionStateSucceeded: models.StateSucceeded,
		types.QueryExecutionStateFailed:    models.StateFailed,
		types.QueryExecutionStateCancelled: models.StateCancelled,
	}
	for in, want := range cases {
		api := &fakeAthenaAPI{state: in, reason: aws.String("why")}
		st, err := newAWSService(api, "", "").Status(context.Background(), "exec-1")
		require.NoError(t, err)
		assert.Equal(t, want, st.State)
		assert.Equal(t, "why", st.Reason)
	}
}

func TestAWSServiceFetchPages(t *testing.T) {
	api := &fakeAthenaAPI{pages: map[string]*athena.GetQueryResultsOutput{
		"": {
			ResultSet: &types.ResultSet{Rows: []types.Row{datumRow(aws.String("id"), aws.String("name")), datumRow(aws.String("1"), nil)}},
			NextToken: aws.String("p2"),
		},
		"p2": {
			ResultSet: &types.ResultSet{Rows: []types.Row{datumRow(aws.String("2"), aws.String("bob"))}},
		},
	}}
	rows, err := newAWSService(api, "", "").Fetch(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "id", *rows[0][0])
	assert.Nil(t, rows[1][1])
	assert.Equal(t, "bob", *rows[2][1])
}

func TestAWSServiceStop(t *testing.T) {
	api := &fakeAthenaAPI{}
	require.NoError(t, newAWSService(api, "", "").Stop(context.Background(), "exec-9"))
	assert.Equal(t, "exec-9", api.stopped)
}
