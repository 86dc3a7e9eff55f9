package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

type accuracyRepository struct {
	db *DB
}

func NewAccuracyRepository(db *DB) *accuracyRepository {
	return &accuracyRepository{db: db}
}

const accuracyColumns = `id, run_id, sku, warehouse, forecast_date, period_start, period_end,
	predicted_demand, actual_demand, absolute_error, percentage_error, abc_class, xyz_class,
	volatility_class, data_quality_score, seasonal_confidence, growth_rate, stockout_affected,
	learning_applied, learning_applied_date, actual_recorded_at`

const learningColumns = `id, sku, warehouse, category, adjustment_type, month, original_value,
	adjusted_value, adjustment_magnitude, confidence_score, learning_reason,
	expected_mape_improvement, source_record_ids, applied, applied_date, created_at`

func (r *accuracyRepository) InsertAccuracyRecords(ctx context.Context, records []domain.ForecastAccuracyRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO forecast_accuracy (
				run_id, sku, warehouse, forecast_date, period_start, period_end, predicted_demand,
				abc_class, xyz_class, volatility_class, data_quality_score, seasonal_confidence,
				growth_rate
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (sku, warehouse, forecast_date, period_start) DO NOTHING
		`
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			res, err := stmt.ExecContext(ctx,
				rec.RunID, rec.SKU, rec.Warehouse, rec.ForecastDate, rec.PeriodStart, rec.PeriodEnd,
				rec.PredictedDemand, rec.ABCClass, rec.XYZClass, rec.VolatilityClass, rec.DataQuality,
				rec.SeasonalConfidence, rec.GrowthRate,
			)
			if err != nil {
				return fmt.Errorf("failed to insert accuracy record for %s: %w", rec.Key(), err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *accuracyRepository) ListAwaitingActuals(ctx context.Context, asOf time.Time) ([]domain.ForecastAccuracyRecord, error) {
	query := `SELECT ` + accuracyColumns + `
		FROM forecast_accuracy
		WHERE actual_demand IS NULL AND period_end < $1
		ORDER BY id
	`
	var rows []domain.ForecastAccuracyRecord
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, asOf); err != nil {
		return nil, fmt.Errorf("failed to list awaiting actuals: %w", err)
	}
	return rows, nil
}

func (r *accuracyRepository) SaveActual(ctx context.Context, rec *domain.ForecastAccuracyRecord) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE forecast_accuracy SET
			actual_demand = $2,
			absolute_error = $3,
			percentage_error = $4,
			stockout_affected = $5,
			actual_recorded_at = $6
		WHERE id = $1
	`, rec.ID, rec.ActualDemand, rec.AbsoluteError, rec.PercentageError, rec.StockoutAffected, rec.ActualRecordedAt)
	return expectRow(res, err, "accuracy record")
}

func (r *accuracyRepository) ListEvaluatedRecords(ctx context.Context, key domain.SKUKey) ([]domain.ForecastAccuracyRecord, error) {
	query := `SELECT ` + accuracyColumns + `
		FROM forecast_accuracy
		WHERE sku = $1 AND warehouse = $2 AND actual_demand IS NOT NULL
		ORDER BY period_start DESC, id DESC
	`
	var rows []domain.ForecastAccuracyRecord
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, key.SKU, key.Warehouse); err != nil {
		return nil, fmt.Errorf("failed to list evaluated records: %w", err)
	}
	return rows, nil
}

func (r *accuracyRepository) ListEvaluatedKeys(ctx context.Context) ([]domain.SKUKey, error) {
	query := `
		SELECT DISTINCT sku, warehouse
		FROM forecast_accuracy
		WHERE actual_demand IS NOT NULL
		ORDER BY sku, warehouse
	`
	var keys []domain.SKUKey
	if err := sqlx.SelectContext(ctx, r.db, &keys, query); err != nil {
		return nil, fmt.Errorf("failed to list evaluated keys: %w", err)
	}
	return keys, nil
}

func (r *accuracyRepository) MarkLearningApplied(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE forecast_accuracy SET learning_applied = TRUE, learning_applied_date = $2
		WHERE id = ANY($1)
	`, pq.Array(ids), at)
	if err != nil {
		return fmt.Errorf("failed to mark learning applied: %w", err)
	}
	return nil
}

func (r *accuracyRepository) SaveLearningAdjustment(ctx context.Context, adj *domain.LearningAdjustment) error {
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}
	if adj.ID != 0 {
		query := `
			UPDATE learning_adjustments SET
				adjusted_value = :adjusted_value,
				adjustment_magnitude = :adjustment_magnitude,
				confidence_score = :confidence_score,
				learning_reason = :learning_reason,
				expected_mape_improvement = :expected_mape_improvement,
				source_record_ids = :source_record_ids,
				applied = :applied,
				applied_date = :applied_date
			WHERE id = :id
		`
		res, err := r.db.NamedExecContext(ctx, query, adj)
		return expectRow(res, err, "learning adjustment")
	}

	query := `
		INSERT INTO learning_adjustments (
			sku, warehouse, category, adjustment_type, month, original_value, adjusted_value,
			adjustment_magnitude, confidence_score, learning_reason, expected_mape_improvement,
			source_record_ids, applied, applied_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		adj.SKU, adj.Warehouse, adj.Category, adj.Type, adj.Month, adj.OriginalValue, adj.AdjustedValue,
		adj.Magnitude, adj.Confidence, adj.Reason, adj.ExpectedMAPEImprovement, adj.SourceRecordIDs,
		adj.Applied, adj.AppliedDate, adj.CreatedAt,
	).Scan(&adj.ID)
	if err != nil {
		return fmt.Errorf("failed to save learning adjustment: %w", err)
	}
	return nil
}

func (r *accuracyRepository) GetLearningAdjustment(ctx context.Context, id int64) (*domain.LearningAdjustment, error) {
	var adj domain.LearningAdjustment
	if err := r.db.GetContext(ctx, &adj, `SELECT `+learningColumns+` FROM learning_adjustments WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "learning adjustment")
	}
	return &adj, nil
}

func (r *accuracyRepository) ListLearningAdjustments(ctx context.Context, applied *bool) ([]domain.LearningAdjustment, error) {
	query := `SELECT ` + learningColumns + ` FROM learning_adjustments`
	var args []interface{}
	if applied != nil {
		query += ` WHERE applied = $1`
		args = append(args, *applied)
	}
	query += ` ORDER BY id`

	var rows []domain.LearningAdjustment
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list learning adjustments: %w", err)
	}
	return rows, nil
}

func (r *accuracyRepository) MarkAdjustmentApplied(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE learning_adjustments SET applied = TRUE, applied_date = $2 WHERE id = $1`, id, at)
	return expectRow(res, err, "learning adjustment")
}
