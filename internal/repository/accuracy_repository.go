package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

type AccuracyRepository interface {
	// InsertAccuracyRecords ignores rows that already exist and returns the number inserted
	InsertAccuracyRecords(ctx context.Context, records []domain.ForecastAccuracyRecord) (int, error)
	ListAwaitingActuals(ctx context.Context, asOf time.Time) ([]domain.ForecastAccuracyRecord, error)
	SaveActual(ctx context.Context, record *domain.ForecastAccuracyRecord) error
	// ListEvaluatedRecords returns records with actuals, newest period first
	ListEvaluatedRecords(ctx context.Context, key domain.SKUKey) ([]domain.ForecastAccuracyRecord, error)
	ListEvaluatedKeys(ctx context.Context) ([]domain.SKUKey, error)
	MarkLearningApplied(ctx context.Context, ids []int64, at time.Time) error

	SaveLearningAdjustment(ctx context.Context, adj *domain.LearningAdjustment) error
	GetLearningAdjustment(ctx context.Context, id int64) (*domain.LearningAdjustment, error)
	ListLearningAdjustments(ctx context.Context, applied *bool) ([]domain.LearningAdjustment, error)
	MarkAdjustmentApplied(ctx context.Context, id int64, at time.Time) error
}
