// backend-go/internal/service/schedule.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/jobs"
)

// Names of the periodic tasks
const (
	TaskDemandStats = "demand-stats"
	TaskSeasonal    = "seasonal-factors"
	TaskLearning    = "learning"
)

// RegisterSchedules wires the periodic recomputations onto the scheduler.
// Seasonal factors follow the demand stats interval.
func RegisterSchedules(s *jobs.Scheduler, cfg config.ForecastConfig, stats *DemandStatsService, seasonal *SeasonalService, learning *LearningService) {
	if stats != nil {
		s.Every(TaskDemandStats, cfg.StatsInterval, func(ctx context.Context, job *jobs.Job) error {
			res, err := stats.RecalculateAll(ctx, progressOf(job))
			job.ReportProgress(res.Succeeded, res.Total, fmt.Sprintf("%d failed", res.Failed))
			return err
		})
	}
	if seasonal != nil {
		s.Every(TaskSeasonal, cfg.StatsInterval, func(ctx context.Context, job *jobs.Job) error {
			res, err := seasonal.RecalculateAll(ctx, progressOf(job))
			job.ReportProgress(res.Succeeded, res.Total, fmt.Sprintf("%d failed", res.Failed))
			return err
		})
	}
	if learning != nil {
		s.Every(TaskLearning, cfg.LearningInterval, func(ctx context.Context, job *jobs.Job) error {
			return LearningPass(ctx, learning, time.Now(), job)
		})
	}
}

// LearningPass records actuals for every closed period up to asOf and then
// analyses the evaluated keys
func LearningPass(ctx context.Context, learning *LearningService, asOf time.Time, job *jobs.Job) error {
	recorded, err := learning.RecordActuals(ctx, asOf)
	if err != nil {
		return err
	}
	res, err := learning.Analyze(ctx)
	if err != nil {
		return err
	}
	if job != nil {
		job.ReportProgress(res.KeysAnalyzed, res.KeysAnalyzed,
			fmt.Sprintf("%d actuals, %d proposed, %d auto-applied", recorded, len(res.Proposed), res.AutoApplied))
	}
	log.Info().
		Int("recorded", recorded).
		Int("keys", res.KeysAnalyzed).
		Int("proposed", len(res.Proposed)).
		Int("auto_applied", res.AutoApplied).
		Msg("learning pass finished")
	return nil
}

func progressOf(job *jobs.Job) ProgressFunc {
	return func(done, total int) {
		job.ReportProgress(done, total, "")
	}
}
