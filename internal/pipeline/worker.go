package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Worker processes files for a specific pipeline
type Worker struct {
	pipeline Pipeline
	config   PipelineConfig
	repo     RunStore
	sink     Sink
	mu       sync.Mutex
}

// NewWorker creates a new pipeline worker
func NewWorker(pipeline Pipeline, config PipelineConfig, repo RunStore, sink Sink) *Worker {
	return &Worker{
		pipeline: pipeline,
		config:   config,
		repo:     repo,
		sink:     sink,
	}
}

// ProcessBatch processes a batch of files for a specific period
func (w *Worker) ProcessBatch(ctx context.Context, date time.Time, files []string) (*PipelineRun, error) {
	logger := log.With().Str("pipeline", w.pipeline.Name()).Str("period", date.Format("2006-01")).Logger()
	logger.Info().Int("files", len(files)).Msg("starting batch processing")

	run, err := w.getOrCreatePipelineRun(ctx, date, len(files))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline run: %w", err)
	}

	batcher := NewBatcher(w.pipeline.Name(), w.config, w.sink)

	fileJobs := make([]*FileJob, len(files))
	for i, file := range files {
		job := &FileJob{
			PipelineRunID: run.ID,
			FilePath:      file,
			Status:        FileStatusQueued,
		}
		if err := w.repo.CreateFileJob(ctx, job); err != nil {
			return run, fmt.Errorf("failed to create file job: %w", err)
		}
		fileJobs[i] = job
	}

	run.Status = StatusProcessing
	run.ProcessedFiles = 0
	run.TotalRows = 0
	run.CompletedAt = nil
	run.ErrorMessage = ""
	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to update pipeline run: %w", err)
	}

	if err := w.processFilesParallel(ctx, run, batcher, fileJobs); err != nil {
		w.failRun(ctx, run, err.Error())
		return run, err
	}

	if err := batcher.Finalize(ctx); err != nil {
		w.failRun(ctx, run, fmt.Sprintf("flush failed: %v", err))
		return run, fmt.Errorf("failed to finalize batch: %w", err)
	}

	run.Status = StatusCompleted
	now := time.Now()
	run.CompletedAt = &now
	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		return run, fmt.Errorf("failed to complete pipeline run: %w", err)
	}

	logger.Info().Int("files", run.ProcessedFiles).Int("rows", run.TotalRows).Msg("batch processing completed")

	return run, nil
}

func (w *Worker) failRun(ctx context.Context, run *PipelineRun, msg string) {
	w.mu.Lock()
	run.Status = StatusFailed
	run.ErrorMessage = msg
	now := time.Now()
	run.CompletedAt = &now
	w.mu.Unlock()
	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		log.Error().Err(err).Str("pipeline", w.pipeline.Name()).Int64("run_id", run.ID).Msg("failed to mark pipeline run failed")
	}
}

// processFilesParallel processes files using a worker pool
func (w *Worker) processFilesParallel(ctx context.Context, run *PipelineRun, batcher *Batcher, jobs []*FileJob) error {
	workerCount := w.config.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	jobChan := make(chan *FileJob, len(jobs))
	errChan := make(chan error, len(jobs))
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				if err := w.processFile(ctx, run, batcher, job); err != nil {
					log.Warn().Err(err).
						Str("pipeline", w.pipeline.Name()).
						Int("worker", workerID).
						Str("file", job.FilePath).
						Msg("failed to process file")
					errChan <- fmt.Errorf("%s: %w", job.FilePath, err)
				}
			}
		}(i)
	}

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			close(jobChan)
			wg.Wait()
			return ctx.Err()
		case jobChan <- job:
		}
	}
	close(jobChan)

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// processFile processes a single file, retrying transform failures
func (w *Worker) processFile(ctx context.Context, run *PipelineRun, batcher *Batcher, job *FileJob) error {
	startTime := time.Now()

	job.Status = FileStatusProcessing
	if err := w.repo.UpdateFileJob(ctx, job); err != nil {
		return err
	}

	if err := w.pipeline.Validate(job.FilePath); err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("validation failed: %w", err))
	}

	attempts := w.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		rows []TransformedRow
		err  error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		rows, err = w.pipeline.Transform(ctx, job.FilePath)
		if err == nil || ctx.Err() != nil {
			break
		}
		job.RetryCount++
	}
	if err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("transformation failed: %w", err))
	}

	if err := batcher.Add(ctx, rows); err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("flush failed: %w", err))
	}

	job.Status = FileStatusCompleted
	job.ErrorMessage = ""
	now := time.Now()
	job.ProcessedAt = &now
	if err := w.repo.UpdateFileJob(ctx, job); err != nil {
		return err
	}

	// counters live on the run so the final update does not clobber them
	w.mu.Lock()
	run.ProcessedFiles++
	run.TotalRows += len(rows)
	w.mu.Unlock()

	log.Debug().
		Str("pipeline", w.pipeline.Name()).
		Str("file", job.FilePath).
		Int("rows", len(rows)).
		Dur("duration", time.Since(startTime)).
		Msg("processed file")

	return nil
}

// markJobFailed marks a job as failed
func (w *Worker) markJobFailed(ctx context.Context, job *FileJob, err error) error {
	job.Status = FileStatusFailed
	job.ErrorMessage = err.Error()

	if uerr := w.repo.UpdateFileJob(ctx, job); uerr != nil {
		log.Error().Err(uerr).Str("pipeline", w.pipeline.Name()).Msg("failed to update job status")
	}

	return err
}

// getOrCreatePipelineRun gets or creates a pipeline run for the period
func (w *Worker) getOrCreatePipelineRun(ctx context.Context, date time.Time, totalFiles int) (*PipelineRun, error) {
	run, err := w.repo.GetPipelineRunByDate(ctx, w.pipeline.Name(), date)
	if err != nil {
		return nil, err
	}

	if run != nil {
		run.TotalFiles = totalFiles
		run.StartedAt = time.Now()
		return run, nil
	}

	run = &PipelineRun{
		PipelineName: w.pipeline.Name(),
		Date:         date,
		Status:       StatusPending,
		TotalFiles:   totalFiles,
		StartedAt:    time.Now(),
	}

	if err := w.repo.CreatePipelineRun(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}
