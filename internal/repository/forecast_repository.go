package repository

import (
	"context"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

type ForecastRepository interface {
	CreateRun(ctx context.Context, run *domain.ForecastRun) error
	GetRun(ctx context.Context, id int64) (*domain.ForecastRun, error)
	UpdateRun(ctx context.Context, run *domain.ForecastRun) error
	ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.ForecastRun, int, error)
	// ListRunsByStatus returns runs ordered by queued_at then id
	ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.ForecastRun, error)
	LatestCompletedRun(ctx context.Context) (*domain.ForecastRun, error)

	// Running pointer
	GetRunningRunID(ctx context.Context) (*int64, error)
	SetRunningRunID(ctx context.Context, id *int64) error

	// Details
	SaveDetail(ctx context.Context, detail *domain.ForecastDetail) error
	GetDetail(ctx context.Context, runID int64, key domain.SKUKey) (*domain.ForecastDetail, error)
	ListDetails(ctx context.Context, runID int64) ([]domain.ForecastDetail, error)
	DeleteDetails(ctx context.Context, runID int64) error
	SetDetailOverride(ctx context.Context, runID int64, key domain.SKUKey, reason string) error

	RecordRunError(ctx context.Context, runErr *domain.RunError) error
	ListRunErrors(ctx context.Context, runID int64) ([]domain.RunError, error)

	CreateAdjustment(ctx context.Context, adj *domain.ForecastAdjustment) error
	ListAdjustments(ctx context.Context, runID int64, key domain.SKUKey) ([]domain.ForecastAdjustment, error)
}
