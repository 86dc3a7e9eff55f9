package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// Orchestrator coordinates running a Pipeline over a set of local files grouped by period.
type Orchestrator struct {
	repo RunStore
	cfg  PipelineConfig
	sink Sink
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(repo RunStore, cfg PipelineConfig, sink Sink) *Orchestrator {
	return &Orchestrator{
		repo: repo,
		cfg:  cfg,
		sink: sink,
	}
}

// Run groups the provided files by period (using p.GetSnapshotDate) and
// runs a Worker batch for each period, oldest first.
func (o *Orchestrator) Run(ctx context.Context, p Pipeline, files []string) ([]*PipelineRun, error) {
	if len(files) == 0 {
		return nil, nil
	}

	byDate := make(map[time.Time][]string)
	for _, f := range files {
		date, err := p.GetSnapshotDate(filepath.Base(f))
		if err != nil {
			return nil, fmt.Errorf("failed to get snapshot date for %s: %w", f, err)
		}

		date = time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
		byDate[date] = append(byDate[date], f)
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	worker := NewWorker(p, o.cfg, o.repo, o.sink)

	runs := make([]*PipelineRun, 0, len(dates))
	for _, date := range dates {
		run, err := worker.ProcessBatch(ctx, date, byDate[date])
		if run != nil {
			runs = append(runs, run)
		}
		if err != nil {
			return runs, fmt.Errorf("failed to process batch for %s: %w", date.Format("2006-01"), err)
		}
	}

	return runs, nil
}
