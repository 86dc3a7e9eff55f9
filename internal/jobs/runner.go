package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Status is the lifecycle state of a background job
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Func is the body of a background job
type Func func(ctx context.Context, job *Job) error

// Job is a handle on a background task started by the Runner
type Job struct {
	ID   string
	Name string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.RWMutex
	status     Status
	progress   int
	total      int
	message    string
	err        error
	startedAt  time.Time
	finishedAt *time.Time
}

// Snapshot is a point-in-time copy of a job for reporting
type Snapshot struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Done       int        `json:"done"`
	Total      int        `json:"total"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Cancelled reports whether cancellation was requested
func (j *Job) Cancelled() bool {
	return j.ctx.Err() != nil
}

// Context returns the job's context, cancelled on Cancel
func (j *Job) Context() context.Context {
	return j.ctx
}

// ReportProgress records how far the job has come
func (j *Job) ReportProgress(done, total int, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = done
	j.total = total
	j.message = message
}

// Cancel requests cancellation; the job body observes it via Cancelled
func (j *Job) Cancel() {
	j.cancel()
}

// Wait blocks until the job finishes and returns its error
func (j *Job) Wait() error {
	<-j.done
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Snapshot returns a copy of the job state
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := Snapshot{
		ID:         j.ID,
		Name:       j.Name,
		Status:     j.status,
		Done:       j.progress,
		Total:      j.total,
		Message:    j.message,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	now := time.Now()
	j.finishedAt = &now
	j.err = err
	switch {
	case err == nil && j.ctx.Err() != nil:
		j.status = StatusCancelled
	case err == nil:
		j.status = StatusSucceeded
	case j.ctx.Err() != nil:
		j.status = StatusCancelled
	default:
		j.status = StatusFailed
	}
	j.mu.Unlock()
	close(j.done)
}

// Runner starts jobs on background goroutines and keeps their handles
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRunner creates a runner whose jobs derive from ctx
func NewRunner(ctx context.Context) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*Job),
	}
}

// Start launches fn on a new goroutine and returns immediately
func (r *Runner) Start(name string, fn Func) *Job {
	ctx, cancel := context.WithCancel(r.ctx)
	job := &Job{
		ID:        uuid.NewString(),
		Name:      name,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    StatusRunning,
		startedAt: time.Now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		logger := log.With().Str("job", name).Str("job_id", job.ID).Logger()
		logger.Info().Msg("job started")

		err := run(ctx, job, fn)
		job.finish(err)

		snap := job.Snapshot()
		if err != nil {
			logger.Error().Err(err).Str("status", string(snap.Status)).Msg("job finished with error")
			return
		}
		logger.Info().Str("status", string(snap.Status)).Msg("job finished")
	}()

	return job
}

func run(ctx context.Context, job *Job, fn Func) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return fn(ctx, job)
}

// Get returns the job with the given id
func (r *Runner) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Cancel requests cancellation of a job by id
func (r *Runner) Cancel(id string) bool {
	j, ok := r.Get(id)
	if !ok {
		return false
	}
	j.Cancel()
	return true
}

// List returns snapshots of every known job, newest first
func (r *Runner) List() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// Closing reports whether Shutdown has been called
func (r *Runner) Closing() bool {
	return r.ctx.Err() != nil
}

// Shutdown cancels every job and waits for them to return
func (r *Runner) Shutdown() {
	r.cancel()
	r.wg.Wait()
}
