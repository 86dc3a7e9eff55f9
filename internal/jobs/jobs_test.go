package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerReportsSuccessAndProgress(t *testing.T) {
	r := NewRunner(context.Background())
	defer r.Shutdown()

	job := r.Start("stats", func(ctx context.Context, j *Job) error {
		j.ReportProgress(2, 2, "done")
		return nil
	})
	require.NoError(t, job.Wait())

	snap := job.Snapshot()
	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, 2, snap.Done)
	assert.Equal(t, 2, snap.Total)
	assert.NotNil(t, snap.FinishedAt)
	assert.NotEmpty(t, job.ID)

	got, ok := r.Get(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)
}

func TestRunnerCancellation(t *testing.T) {
	r := NewRunner(context.Background())
	defer r.Shutdown()

	started := make(chan struct{})
	job := r.Start("long", func(ctx context.Context, j *Job) error {
		close(started)
		<-ctx.Done()
		assert.True(t, j.Cancelled())
		return nil
	})
	<-started
	assert.True(t, r.Cancel(job.ID))
	require.NoError(t, job.Wait())
	assert.Equal(t, StatusCancelled, job.Snapshot().Status)
	assert.False(t, r.Cancel("missing"))
}

func TestRunnerRecordsFailureAndPanic(t *testing.T) {
	r := NewRunner(context.Background())
	defer r.Shutdown()

	failed := r.Start("fail", func(context.Context, *Job) error { return errors.New("boom") })
	assert.EqualError(t, failed.Wait(), "boom")
	assert.Equal(t, StatusFailed, failed.Snapshot().Status)

	panicked := r.Start("panic", func(context.Context, *Job) error { panic("bad") })
	assert.ErrorContains(t, panicked.Wait(), "panicked")

	assert.Len(t, r.List(), 2)
}

func TestSchedulerRunsTaskRepeatedly(t *testing.T) {
	r := NewRunner(context.Background())
	defer r.Shutdown()

	var calls int32
	s := NewScheduler(r)
	s.Every("tick", 10*time.Millisecond, func(context.Context, *Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	s.Every("disabled", 0, func(context.Context, *Job) error { return nil })
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.Len(t, s.tasks, 1)
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	r := NewRunner(context.Background())
	defer r.Shutdown()

	release := make(chan struct{})
	s := NewScheduler(r)
	tk := task{name: "slow", interval: time.Hour, fn: func(ctx context.Context, _ *Job) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}

	first := s.trigger(tk)
	require.NotNil(t, first)
	assert.Nil(t, s.trigger(tk))

	close(release)
	require.NoError(t, first.Wait())
	assert.NotNil(t, s.trigger(tk))
}

func TestSchedulerTriggerByName(t *testing.T) {
	r := NewRunner(context.Background())
	defer r.Shutdown()

	s := NewScheduler(r)
	s.Every("stats", time.Hour, func(context.Context, *Job) error { return nil })
	assert.Equal(t, []string{"stats"}, s.Tasks())

	job, ok := s.Trigger("stats")
	require.True(t, ok)
	require.NotNil(t, job)
	require.NoError(t, job.Wait())
	assert.Equal(t, "stats", job.Name)

	_, ok = s.Trigger("missing")
	assert.False(t, ok)
}

func TestRunnerClosing(t *testing.T) {
	r := NewRunner(context.Background())
	assert.False(t, r.Closing())

	started := make(chan struct{})
	job := r.Start("long", func(ctx context.Context, j *Job) error {
		close(started)
		<-ctx.Done()
		return nil
	})
	<-started
	r.Shutdown()
	assert.True(t, r.Closing())
	assert.Equal(t, StatusCancelled, job.Snapshot().Status)
}
