package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"
)

const runColumns = `id, pipeline_name, date, status, total_files,
		       processed_files, total_rows, started_at, completed_at, COALESCE(error_message, '')`

// Repository handles database operations for pipeline tracking
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new pipeline repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreatePipelineRun creates a new pipeline run record
func (r *Repository) CreatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (
			pipeline_name, date, status, total_files,
			processed_files, total_rows, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.QueryRowContext(
		ctx, query,
		run.PipelineName, run.Date, run.Status, run.TotalFiles,
		run.ProcessedFiles, run.TotalRows, run.StartedAt,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to create pipeline run: %w", err)
	}
	return nil
}

// UpdatePipelineRun updates an existing pipeline run
func (r *Repository) UpdatePipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET status = $1, total_files = $2, processed_files = $3, total_rows = $4,
		    completed_at = $5, error_message = $6
		WHERE id = $7
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.TotalFiles, run.ProcessedFiles, run.TotalRows,
		run.CompletedAt, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update pipeline run %d: %w", run.ID, err)
	}
	return nil
}

// GetPipelineRunByDate retrieves a pipeline run for a specific period
func (r *Repository) GetPipelineRunByDate(ctx context.Context, pipelineName string, date time.Time) (*PipelineRun, error) {
	query := `SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE pipeline_name = $1 AND date = $2
	`

	run := &PipelineRun{}
	err := scanRun(r.db.QueryRowContext(ctx, query, pipelineName, date), run)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline run: %w", err)
	}

	return run, nil
}

// ListPipelineRuns returns the most recent runs of a pipeline
func (r *Repository) ListPipelineRuns(ctx context.Context, pipelineName string, limit int) ([]*PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE pipeline_name = $1
		ORDER BY date DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, pipelineName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []*PipelineRun
	for rows.Next() {
		run := &PipelineRun{}
		if err := scanRun(rows, run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner, run *PipelineRun) error {
	return row.Scan(
		&run.ID, &run.PipelineName, &run.Date, &run.Status,
		&run.TotalFiles, &run.ProcessedFiles, &run.TotalRows,
		&run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
	)
}

// CreateFileJob creates a new file job record
func (r *Repository) CreateFileJob(ctx context.Context, job *FileJob) error {
	query := `
		INSERT INTO pipeline_file_jobs (
			pipeline_run_id, file_path, status, error_message
		) VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := r.db.QueryRowContext(
		ctx, query,
		job.PipelineRunID, job.FilePath, job.Status, job.ErrorMessage,
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("failed to create file job: %w", err)
	}
	return nil
}

// UpdateFileJob updates an existing file job
func (r *Repository) UpdateFileJob(ctx context.Context, job *FileJob) error {
	query := `
		UPDATE pipeline_file_jobs
		SET status = $1, error_message = $2, processed_at = $3, retry_count = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(
		ctx, query,
		job.Status, job.ErrorMessage, job.ProcessedAt, job.RetryCount, job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update file job %d: %w", job.ID, err)
	}
	return nil
}

// GetFileJobsByRunID retrieves all file jobs for a pipeline run
func (r *Repository) GetFileJobsByRunID(ctx context.Context, runID int64) ([]*FileJob, error) {
	query := `
		SELECT id, pipeline_run_id, file_path, status,
		       COALESCE(error_message, ''), processed_at, retry_count
		FROM pipeline_file_jobs
		WHERE pipeline_run_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*FileJob
	for rows.Next() {
		job := &FileJob{}
		err := rows.Scan(
			&job.ID, &job.PipelineRunID, &job.FilePath,
			&job.Status, &job.ErrorMessage, &job.ProcessedAt, &job.RetryCount,
		)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// MemoryRunStore keeps pipeline tracking in process memory
type MemoryRunStore struct {
	mu     sync.Mutex
	runs   map[int64]PipelineRun
	jobs   map[int64]FileJob
	nextID int64
}

// NewMemoryRunStore creates an empty in-memory run store
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs: make(map[int64]PipelineRun),
		jobs: make(map[int64]FileJob),
	}
}

func (m *MemoryRunStore) CreatePipelineRun(_ context.Context, run *PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	run.ID = m.nextID
	m.runs[run.ID] = *run
	return nil
}

func (m *MemoryRunStore) UpdatePipelineRun(_ context.Context, run *PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return fmt.Errorf("pipeline run %d not found", run.ID)
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *MemoryRunStore) GetPipelineRunByDate(_ context.Context, pipelineName string, date time.Time) (*PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, run := range m.runs {
		if run.PipelineName == pipelineName && run.Date.Equal(date) {
			out := run
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryRunStore) ListPipelineRuns(_ context.Context, pipelineName string, limit int) ([]*PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*PipelineRun
	for _, run := range m.runs {
		if run.PipelineName != pipelineName {
			continue
		}
		r := run
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRunStore) CreateFileJob(_ context.Context, job *FileJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job.ID = m.nextID
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemoryRunStore) UpdateFileJob(_ context.Context, job *FileJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("file job %d not found", job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemoryRunStore) GetFileJobsByRunID(_ context.Context, runID int64) ([]*FileJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*FileJob
	for _, job := range m.jobs {
		if job.PipelineRunID == runID {
			j := job
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ RunStore = (*Repository)(nil)
	_ RunStore = (*MemoryRunStore)(nil)
)
