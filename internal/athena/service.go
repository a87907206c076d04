package athena

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"athena-query-scheduler/internal/config"
	"athena-query-scheduler/internal/models"
)

type athenaAPI interface {
	StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, in *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
	StopQueryExecution(ctx context.Context, in *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
}

// AWSService implements Service and Stopper on Amazon Athena.
type AWSService struct {
	api            athenaAPI
	workGroup      string
	outputLocation string
}

var (
	_ Service = (*AWSService)(nil)
	_ Stopper = (*AWSService)(nil)
)

// NewAWSService loads the default AWS credential chain and builds an Athena client.
func NewAWSService(ctx context.Context, cfg config.Config) (*AWSService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := athena.NewFromConfig(awsCfg, func(o *athena.Options) {
		if cfg.AthenaEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AthenaEndpoint)
		}
	})
	return newAWSService(client, cfg.AthenaWorkGroup, cfg.AthenaOutputLocation), nil
}

func newAWSService(api athenaAPI, workGroup, outputLocation string) *AWSService {
	return &AWSService{api: api, workGroup: workGroup, outputLocation: outputLocation}
}

// Submit starts a query execution in the configured workgroup.
func (s *AWSService) Submit(ctx context.Context, sql string) (string, error) {
	in := &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
	}
	if s.workGroup != "" {
		in.WorkGroup = aws.String(s.workGroup)
	}
	if s.outputLocation != "" {
		in.ResultConfiguration = &types.ResultConfiguration{OutputLocation: aws.String(s.outputLocation)}
	}
	out, err := s.api.StartQueryExecution(ctx, in)
	if err != nil {
		return "", fmt.Errorf("start query execution: %w", err)
	}
	return aws.ToString(out.QueryExecutionId), nil
}

// Status reports the execution state.
func (s *AWSService) Status(ctx context.Context, jobID string) (models.JobStatus, error) {
	out, err := s.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(jobID)})
	if err != nil {
		return models.JobStatus{}, fmt.Errorf("get query execution: %w", err)
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return models.JobStatus{State: models.StateRunning}, nil
	}
	st := out.QueryExecution.Status
	return models.JobStatus{
		State:  mapState(st.State),
		Reason: aws.ToString(st.StateChangeReason),
	}, nil
}

// Fetch reads every result page. The first row of the first page is the header.
func (s *AWSService) Fetch(ctx context.Context, jobID string) ([]models.RawRow, error) {
	p := athena.NewGetQueryResultsPaginator(s.api, &athena.GetQueryResultsInput{QueryExecutionId: aws.String(jobID)})
	var rows []models.RawRow
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("get query results: %w", err)
		}
		if page.ResultSet == nil {
			continue
		}
		for _, r := range page.ResultSet.Rows {
			row := make(models.RawRow, len(r.Data))
			for i, d := range r.Data {
				row[i] = d.VarCharValue
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Stop cancels a running execution.
func (s *AWSService) Stop(ctx context.Context, jobID string) error {
	if _, err := s.api.StopQueryExecution(ctx, &athena.StopQueryExecutionInput{QueryExecutionId: aws.String(jobID)}); err != nil {
		return fmt.Errorf("stop query execution: %w", err)
	}
	return nil
}

func mapState(s types.QueryExecutionState) models.JobState {
	switch s {
	case types.QueryExecutionStateQueued:
		return models.StatePending
	case types.QueryExecutionStateSucceeded:
		return models.StateSucceeded
	case types.QueryExecutionStateFailed:
		return models.StateFailed
	case types.QueryExecutionStateCancelled:
		return models.StateCancelled
	}
	return models.StateRunning
}
