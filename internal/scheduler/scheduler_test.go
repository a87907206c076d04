package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"athena-query-scheduler/internal/models"
)

type recordingSink struct {
	mu    sync.Mutex
	names []string
	fail  map[string]bool
}

func (s *recordingSink) Write(_ context.Context, _ models.Table, dir, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	if s.fail[name] {
		return "", errors.New("disk full")
	}
	return dir + "/" + name + ".csv", nil
}

func okTask(id string) Task {
	return Task{ID: id, Run: func(context.Context) (models.Table, error) {
		return models.Table{Columns: []string{"id"}, Rows: [][]*string{{nil}}}, nil
	}}
}

func TestRunIsolatesFailures(t *testing.T) {
	sink := &recordingSink{}
	s := New(WithSink(sink, "foo", ""))
	tasks := []Task{okTask("t1"), okTask("t2"), {
		ID:  "t3",
		Run: func(context.Context) (models.Table, error) { return models.Table{}, errors.New("boom") },
	}, okTask("t4"), okTask("t5")}

	outcomes, err := s.Run(context.Background(), tasks, 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	var failedCount int
	for _, o := range outcomes {
		if o.Failed() {
			failedCount++
			assert.Equal(t, "t3", o.TaskID)
			assert.Equal(t, "[FAILED] t3: boom", o.String())
		} else {
			assert.Equal(t, models.OutcomeSucceeded, o.Status)
			assert.Equal(t, 1, o.Rows)
		}
	}
	assert.Equal(t, 1, failedCount)
	assert.Len(t, sink.names, 4)
	assert.NotContains(t, sink.names, "t3")
}

func TestRunRejectsInvalidTasksBeforeStarting(t *testing.T) {
	var ran atomic.Int32
	counting := Task{ID: "a", Run: func(context.Context) (models.Table, error) {
		ran.Add(1)
		return models.Table{}, nil
	}}
	cases := map[string][]Task{
		"nil func":  {counting, {ID: "b"}},
		"no id":     {counting, {Run: counting.Run}},
		"duplicate": {counting, counting},
	}
	for name, tasks := range cases {
		t.Run(name, func(t *testing.T) {
			outcomes, err := New().Run(context.Background(), tasks, 2)
			require.ErrorIs(t, err, models.ErrTypeMismatch)
			assert.Nil(t, outcomes)
		})
	}
	assert.Zero(t, ran.Load())
}

func TestRunRespectsWorkerLimit(t *testing.T) {
	var current, peak atomic.Int32
	tasks := make([]Task, 12)
	for i := range tasks {
		tasks[i] = Task{ID: fmt.Sprintf("t%d", i), Run: func(context.Context) (models.Table, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return models.Table{}, nil
		}}
	}
	outcomes, err := New().Run(context.Background(), tasks, 3)
	require.NoError(t, err)
	assert.Len(t, outcomes, 12)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunReportsCompletionOrder(t *testing.T) {
	release := make(chan struct{})
	slow := Task{ID: "slow", Run: func(context.Context) (models.Table, error) {
		<-release
		return models.Table{}, nil
	}}
	fast := okTask("fast")

	var observed []string
	s := New(WithObserver(func(o models.Outcome) {
		observed = append(observed, o.TaskID)
		if o.TaskID == "fast" {
			close(release)
		}
	}))
	outcomes, err := s.Run(context.Background(), []Task{slow, fast}, 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "fast", outcomes[0].TaskID)
	assert.Equal(t, "slow", outcomes[1].TaskID)
	assert.Equal(t, []string{"fast", "slow"}, observed)
}

func TestRunRecoversPanics(t *testing.T) {
	tasks := []Task{okTask("ok"), {ID: "bad", Run: func(context.Context) (models.Table, error) {
		panic("nil map")
	}}}
	outcomes, err := New().Run(context.Background(), tasks, 0)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		if o.TaskID == "bad" {
			assert.True(t, o.Failed())
			assert.Contains(t, o.Detail, "panic: nil map")
		} else {
			assert.False(t, o.Failed())
		}
	}
}

func TestRunSinkFailureAndPrefix(t *testing.T) {
	sink := &recordingSink{fail: map[string]bool{"daily_b": true}}
	s := New(WithSink(sink, "foo", "daily"))
	outcomes, err := s.Run(context.Background(), []Task{okTask("a"), okTask("b")}, 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	// one worker runs tasks in submission order
	assert.Equal(t, "a", outcomes[0].TaskID)
	assert.Equal(t, "foo/daily_a.csv", outcomes[0].Location)
	assert.True(t, outcomes[1].Failed())
	assert.Contains(t, outcomes[1].Detail, "write result: disk full")
}

func TestRunEmptyTaskSet(t *testing.T) {
	outcomes, err := New().Run(context.Background(), nil, 2)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
