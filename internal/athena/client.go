// Package athena drives one query through the submit, poll and fetch lifecycle of an
// asynchronous query service.
package athena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"athena-query-scheduler/internal/logger"
	"athena-query-scheduler/internal/models"
	"athena-query-scheduler/internal/telemetry"
)

var (
	ErrSubmission       = errors.New("query submission rejected")
	ErrNotReady         = errors.New("query results not ready")
	ErrAlreadySubmitted = errors.New("client already submitted a query")
	// ErrPollTimeout is never returned by AwaitCompletion, which reports StateTimedOut
	// instead. Callers that need an error for that outcome wrap this one.
	ErrPollTimeout = errors.New("query did not reach a terminal state")
)

const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = time.Second

	throttleWait = 500 * time.Millisecond
)

// Service is the capability the client needs from the remote query engine.
type Service interface {
	Submit(ctx context.Context, sql string) (string, error)
	Status(ctx context.Context, jobID string) (models.JobStatus, error)
	Fetch(ctx context.Context, jobID string) ([]models.RawRow, error)
}

// Stopper is implemented by services that can cancel a running job.
type Stopper interface {
	Stop(ctx context.Context, jobID string) error
}

// Limiter gates submissions. ratelimit.TokenBucket satisfies it.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter makes Submit wait for a token from l under key before submitting.
func WithLimiter(l Limiter, key string) Option {
	return func(c *Client) {
		c.limiter = l
		c.limitKey = key
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSleep replaces the wait between polls.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithCancelOnTimeout asks the service to stop a job whose polling ran out of attempts.
// It only has an effect when the service implements Stopper.
func WithCancelOnTimeout(enabled bool) Option {
	return func(c *Client) { c.cancelOnTimeout = enabled }
}

// Client tracks exactly one job. It is single-use and not safe for concurrent use.
type Client struct {
	svc             Service
	limiter         Limiter
	limitKey        string
	logger          *slog.Logger
	sleep           func(context.Context, time.Duration) error
	cancelOnTimeout bool

	job models.Job
}

// NewClient creates an idle client.
func NewClient(svc Service, opts ...Option) *Client {
	c := &Client{
		svc:    svc,
		logger: logger.Discard(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Job returns a copy of the tracked job.
func (c *Client) Job() models.Job {
	return c.job
}

// Submit sends sql to the service and records the job id.
func (c *Client) Submit(ctx context.Context, sql string) (models.Job, error) {
	if c.job.ID != "" || c.job.State != "" {
		return c.job, ErrAlreadySubmitted
	}
	if err := c.waitForToken(ctx); err != nil {
		return c.job, err
	}

	logger.Query(ctx, c.logger, "submitting query", "sql", sql)
	id, err := c.svc.Submit(ctx, sql)
	if err != nil {
		telemetry.SubmissionErrors.Inc()
		c.job = models.Job{SQL: sql, State: models.StateFailed, Reason: err.Error()}
		return c.job, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	if id == "" {
		telemetry.SubmissionErrors.Inc()
		c.job = models.Job{SQL: sql, State: models.StateFailed, Reason: "missing job id"}
		return c.job, fmt.Errorf("%w: service returned no job id", ErrSubmission)
	}

	telemetry.QueriesSubmitted.Inc()
	c.job = models.Job{ID: id, SQL: sql, State: models.StatePending, SubmittedAt: time.Now()}
	c.logger.Info("query started", "job_id", id)
	return c.job, nil
}

// AwaitCompletion polls until the job reaches a terminal state or maxAttempts polls
// come back non-terminal. The wait before poll k+1 is twice the wait before poll k,
// starting at initialDelay. Running out of attempts yields StateTimedOut with a nil
// error; errors are reserved for failed status calls and context cancellation.
func (c *Client) AwaitCompletion(ctx context.Context, maxAttempts int, initialDelay time.Duration) (models.JobState, error) {
	if c.job.ID == "" {
		return c.job.State, fmt.Errorf("await before submit: %w", ErrNotReady)
	}
	if c.job.State.Terminal() {
		return c.job.State, nil
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}

	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	delay := initialDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		telemetry.PollAttempts.Inc()
		status, err := c.svc.Status(ctx, c.job.ID)
		if err != nil {
			return c.job.State, fmt.Errorf("poll status %s: %w", c.job.ID, err)
		}
		c.logger.Debug("query status", "job_id", c.job.ID, "state", status.State, "attempt", attempt)

		switch status.State {
		case models.StateSucceeded, models.StateFailed, models.StateCancelled:
			return c.finish(status.State, status.Reason), nil
		case models.StatePending, models.StateRunning:
			c.job.State = status.State
		default:
			c.job.State = models.StateRunning
		}

		if attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return c.job.State, fmt.Errorf("wait for %s: %w", c.job.ID, err)
		}
		delay += delay
	}

	state := c.finish(models.StateTimedOut, fmt.Sprintf("no terminal state after %d polls", maxAttempts))
	if c.cancelOnTimeout {
		if st, ok := c.svc.(Stopper); ok {
			if err := st.Stop(ctx, c.job.ID); err != nil {
				c.logger.Warn("stop timed out query", "job_id", c.job.ID, "error", err)
			}
		}
	}
	return state, nil
}

// FetchResults returns every row of a succeeded job, header first.
func (c *Client) FetchResults(ctx context.Context) ([]models.RawRow, error) {
	if c.job.State != models.StateSucceeded {
		return nil, fmt.Errorf("fetch job %q in state %q: %w", c.job.ID, c.job.State, ErrNotReady)
	}
	rows, err := c.svc.Fetch(ctx, c.job.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch results %s: %w", c.job.ID, err)
	}
	return rows, nil
}

func (c *Client) finish(state models.JobState, reason string) models.JobState {
	c.job.State = state
	c.job.Reason = reason
	telemetry.QueryStates.WithLabelValues(string(state)).Inc()
	if !c.job.SubmittedAt.IsZero() {
		telemetry.QueryDuration.Observe(time.Since(c.job.SubmittedAt).Seconds())
	}
	if state == models.StateSucceeded {
		c.logger.Info("query finished", "job_id", c.job.ID, "state", state)
	} else {
		c.logger.Warn("query finished", "job_id", c.job.ID, "state", state, "reason", reason)
	}
	return state
}

// waitForToken blocks until the limiter admits a submission. Limiter errors are
// logged and the submission proceeds.
func (c *Client) waitForToken(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	for {
		allowed, _, err := c.limiter.Allow(ctx, c.limitKey)
		if err != nil {
			c.logger.Warn("rate limiter unavailable", "error", err)
			return nil
		}
		if allowed {
			return nil
		}
		telemetry.ThrottleWaits.Inc()
		if err := c.sleep(ctx, throttleWait); err != nil {
			return fmt.Errorf("wait for submission token: %w", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
