package pipeline

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

// Pipeline defines the interface that all data pipelines must implement
type Pipeline interface {
	// Name returns the unique identifier for this pipeline
	Name() string

	// Transform processes a single input file and returns the parsed rows
	Transform(ctx context.Context, inputFile string) ([]TransformedRow, error)

	// GetSnapshotDate extracts the period from the filename
	GetSnapshotDate(filename string) (time.Time, error)

	// Validate checks if the input file is valid for this pipeline
	Validate(inputFile string) error
}

// TransformedRow is one parsed sales row with the file it came from
type TransformedRow struct {
	Sales  domain.MonthlySales
	Source string
}

// Sink receives flushed rows. It must be safe to call repeatedly with
// overlapping rows since files may be re-imported.
type Sink func(ctx context.Context, rows []TransformedRow) error

// PipelineConfig holds configuration for a pipeline instance
type PipelineConfig struct {
	Name          string
	BatchSize     int           // Rows to buffer before flushing
	FlushInterval time.Duration // Max time to wait before flushing
	WorkerCount   int           // Number of concurrent workers
	RetryAttempts int           // Number of retries on failure
}

// DefaultPipelineConfig returns sensible defaults
func DefaultPipelineConfig(name string) PipelineConfig {
	return PipelineConfig{
		Name:          name,
		BatchSize:     5000,
		FlushInterval: time.Minute,
		WorkerCount:   4,
		RetryAttempts: 3,
	}
}

// PipelineStatus represents the current state of a pipeline run
type PipelineStatus string

const (
	StatusPending    PipelineStatus = "pending"
	StatusProcessing PipelineStatus = "processing"
	StatusCompleted  PipelineStatus = "completed"
	StatusFailed     PipelineStatus = "failed"
)

// FileJobStatus represents the state of a single file processing job
type FileJobStatus string

const (
	FileStatusQueued     FileJobStatus = "queued"
	FileStatusProcessing FileJobStatus = "processing"
	FileStatusCompleted  FileJobStatus = "completed"
	FileStatusFailed     FileJobStatus = "failed"
)

// PipelineRun tracks a single execution of a pipeline for a specific period
type PipelineRun struct {
	ID             int64          `json:"id"`
	PipelineName   string         `json:"pipeline_name"`
	Date           time.Time      `json:"date"`
	Status         PipelineStatus `json:"status"`
	TotalFiles     int            `json:"total_files"`
	ProcessedFiles int            `json:"processed_files"`
	TotalRows      int            `json:"total_rows"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

// FileJob tracks the processing of a single file
type FileJob struct {
	ID            int64         `json:"id"`
	PipelineRunID int64         `json:"pipeline_run_id"`
	FilePath      string        `json:"file_path"`
	Status        FileJobStatus `json:"status"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	ProcessedAt   *time.Time    `json:"processed_at"`
	RetryCount    int           `json:"retry_count"`
}

// RunStore persists pipeline runs and file jobs
type RunStore interface {
	CreatePipelineRun(ctx context.Context, run *PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *PipelineRun) error
	// GetPipelineRunByDate returns nil without error when no run exists
	GetPipelineRunByDate(ctx context.Context, pipelineName string, date time.Time) (*PipelineRun, error)
	ListPipelineRuns(ctx context.Context, pipelineName string, limit int) ([]*PipelineRun, error)
	CreateFileJob(ctx context.Context, job *FileJob) error
	UpdateFileJob(ctx context.Context, job *FileJob) error
	GetFileJobsByRunID(ctx context.Context, runID int64) ([]*FileJob, error)
}
