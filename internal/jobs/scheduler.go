package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type task struct {
	name     string
	interval time.Duration
	fn       Func
}

// Scheduler starts named jobs on the runner at fixed intervals
type Scheduler struct {
	runner *Runner
	tasks  []task

	mu      sync.Mutex
	running map[string]*Job
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler backed by runner
func NewScheduler(runner *Runner) *Scheduler {
	return &Scheduler{runner: runner, running: make(map[string]*Job)}
}

// Every registers fn to run each interval; non-positive intervals are ignored
func (s *Scheduler) Every(name string, interval time.Duration, fn Func) {
	if interval <= 0 {
		log.Warn().Str("task", name).Msg("schedule disabled, interval not positive")
		return
	}
	s.tasks = append(s.tasks, task{name: name, interval: interval, fn: fn})
}

// Start begins ticking every registered task until ctx ends or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	for _, t := range s.tasks {
		s.wg.Add(1)
		go func(t task) {
			defer s.wg.Done()
			ticker := time.NewTicker(t.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.trigger(t)
				}
			}
		}(t)
	}
}

// Trigger starts a registered task now. ok is false for unknown names and
// job is nil when the previous run is still going.
func (s *Scheduler) Trigger(name string) (job *Job, ok bool) {
	for _, t := range s.tasks {
		if t.name == name {
			return s.trigger(t), true
		}
	}
	return nil, false
}

// Tasks returns the registered task names
func (s *Scheduler) Tasks() []string {
	names := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		names = append(names, t.name)
	}
	return names
}

// trigger starts the task unless its previous run is still going
func (s *Scheduler) trigger(t task) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.running[t.name]; ok {
		if prev.Snapshot().Status == StatusRunning {
			log.Debug().Str("task", t.name).Msg("previous run still in progress, skipping")
			return nil
		}
	}
	job := s.runner.Start(t.name, t.fn)
	s.running[t.name] = job
	return job
}

// Stop halts the tickers; jobs already started keep running on the runner
func (s *Scheduler) Stop() {
	if s.stop != nil {
		s.stop()
	}
	s.wg.Wait()
}
