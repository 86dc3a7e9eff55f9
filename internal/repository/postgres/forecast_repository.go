package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

type forecastRepository struct {
	db *DB
}

func NewForecastRepository(db *DB) *forecastRepository {
	return &forecastRepository{db: db}
}

const runColumns = `id, name, status, queue_position, forecast_start, growth_rate_override,
	sku_filter, warehouses, total_skus, processed_skus, failed_skus, created_at,
	queued_at, started_at, completed_at, archived, archive_key, error_message`

const detailColumns = `run_id, sku, warehouse, monthly_qty, monthly_revenue, total_qty_forecast,
	avg_monthly_qty, total_revenue_forecast, avg_monthly_revenue, base_demand_used,
	seasonal_pattern_applied, growth_rate_applied, growth_rate_source, confidence_score,
	method_used, manual_override, override_reason, created_at`

func (r *forecastRepository) CreateRun(ctx context.Context, run *domain.ForecastRun) error {
	query := `
		INSERT INTO forecast_runs (
			name, status, queue_position, forecast_start, growth_rate_override, sku_filter,
			warehouses, total_skus, processed_skus, failed_skus, created_at, queued_at,
			started_at, completed_at, archived, archive_key, error_message
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		RETURNING id
	`
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, query,
		run.Name, run.Status, run.QueuePosition, run.ForecastStart, run.GrowthOverride, run.SKUFilter,
		run.WarehouseList, run.TotalSKUs, run.ProcessedSKUs, run.FailedSKUs, run.CreatedAt, run.QueuedAt,
		run.StartedAt, run.CompletedAt, run.Archived, run.ArchiveKey, run.ErrorMessage,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to create forecast run: %w", err)
	}
	return nil
}

func (r *forecastRepository) GetRun(ctx context.Context, id int64) (*domain.ForecastRun, error) {
	var run domain.ForecastRun
	if err := r.db.GetContext(ctx, &run, `SELECT `+runColumns+` FROM forecast_runs WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "forecast run")
	}
	return &run, nil
}

func (r *forecastRepository) UpdateRun(ctx context.Context, run *domain.ForecastRun) error {
	query := `
		UPDATE forecast_runs SET
			name = :name,
			status = :status,
			queue_position = :queue_position,
			forecast_start = :forecast_start,
			growth_rate_override = :growth_rate_override,
			sku_filter = :sku_filter,
			warehouses = :warehouses,
			total_skus = :total_skus,
			processed_skus = :processed_skus,
			failed_skus = :failed_skus,
			queued_at = :queued_at,
			started_at = :started_at,
			completed_at = :completed_at,
			archived = :archived,
			archive_key = :archive_key,
			error_message = :error_message
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, run)
	return expectRow(res, err, "forecast run")
}

func (r *forecastRepository) ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.ForecastRun, int, error) {
	where, args := buildRunFilterClause(filter, "", 1)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM forecast_runs`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count forecast runs: %w", err)
	}

	query := `SELECT ` + runColumns + ` FROM forecast_runs` + where + ` ORDER BY id DESC`
	if limit, offset, unlimited := pageBounds(filter.Page, filter.PageSize); !unlimited {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}

	var runs []domain.ForecastRun
	if err := sqlx.SelectContext(ctx, r.db, &runs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list forecast runs: %w", err)
	}
	if runs == nil {
		runs = []domain.ForecastRun{}
	}
	return runs, total, nil
}

func (r *forecastRepository) ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.ForecastRun, error) {
	query := `SELECT ` + runColumns + `
		FROM forecast_runs
		WHERE status = $1
		ORDER BY queued_at ASC NULLS LAST, id ASC
	`
	var runs []domain.ForecastRun
	if err := sqlx.SelectContext(ctx, r.db, &runs, query, status); err != nil {
		return nil, fmt.Errorf("failed to list %s runs: %w", status, err)
	}
	return runs, nil
}

func (r *forecastRepository) LatestCompletedRun(ctx context.Context) (*domain.ForecastRun, error) {
	query := `SELECT ` + runColumns + `
		FROM forecast_runs
		WHERE status = $1
		ORDER BY id DESC
		LIMIT 1
	`
	var run domain.ForecastRun
	if err := r.db.GetContext(ctx, &run, query, domain.RunStatusCompleted); err != nil {
		return nil, notFound(err, "completed run")
	}
	return &run, nil
}

func (r *forecastRepository) GetRunningRunID(ctx context.Context) (*int64, error) {
	var id sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT running_run_id FROM forecast_scheduler_state WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get running run: %w", err)
	}
	return &id.Int64, nil
}

func (r *forecastRepository) SetRunningRunID(ctx context.Context, id *int64) error {
	query := `
		INSERT INTO forecast_scheduler_state (id, running_run_id) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET running_run_id = EXCLUDED.running_run_id
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to set running run: %w", err)
	}
	return nil
}

// SaveDetail writes the full detail row in one statement
func (r *forecastRepository) SaveDetail(ctx context.Context, d *domain.ForecastDetail) error {
	query := `
		INSERT INTO forecast_details (` + detailColumns + `)
		VALUES (
			:run_id, :sku, :warehouse, :monthly_qty, :monthly_revenue, :total_qty_forecast,
			:avg_monthly_qty, :total_revenue_forecast, :avg_monthly_revenue, :base_demand_used,
			:seasonal_pattern_applied, :growth_rate_applied, :growth_rate_source, :confidence_score,
			:method_used, :manual_override, :override_reason, NOW()
		)
		ON CONFLICT (run_id, sku, warehouse) DO UPDATE SET
			monthly_qty = EXCLUDED.monthly_qty,
			monthly_revenue = EXCLUDED.monthly_revenue,
			total_qty_forecast = EXCLUDED.total_qty_forecast,
			avg_monthly_qty = EXCLUDED.avg_monthly_qty,
			total_revenue_forecast = EXCLUDED.total_revenue_forecast,
			avg_monthly_revenue = EXCLUDED.avg_monthly_revenue,
			base_demand_used = EXCLUDED.base_demand_used,
			seasonal_pattern_applied = EXCLUDED.seasonal_pattern_applied,
			growth_rate_applied = EXCLUDED.growth_rate_applied,
			growth_rate_source = EXCLUDED.growth_rate_source,
			confidence_score = EXCLUDED.confidence_score,
			method_used = EXCLUDED.method_used
	`
	if _, err := r.db.NamedExecContext(ctx, query, d); err != nil {
		return fmt.Errorf("failed to save forecast detail for %s: %w", d.Key(), err)
	}
	return nil
}

func (r *forecastRepository) GetDetail(ctx context.Context, runID int64, key domain.SKUKey) (*domain.ForecastDetail, error) {
	query := `SELECT ` + detailColumns + ` FROM forecast_details WHERE run_id = $1 AND sku = $2 AND warehouse = $3`
	var d domain.ForecastDetail
	if err := r.db.GetContext(ctx, &d, query, runID, key.SKU, key.Warehouse); err != nil {
		return nil, notFound(err, "forecast detail")
	}
	return &d, nil
}

func (r *forecastRepository) ListDetails(ctx context.Context, runID int64) ([]domain.ForecastDetail, error) {
	query := `SELECT ` + detailColumns + ` FROM forecast_details WHERE run_id = $1 ORDER BY sku, warehouse`
	var rows []domain.ForecastDetail
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list forecast details: %w", err)
	}
	return rows, nil
}

func (r *forecastRepository) DeleteDetails(ctx context.Context, runID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM forecast_details WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to delete forecast details: %w", err)
	}
	return nil
}

func (r *forecastRepository) SetDetailOverride(ctx context.Context, runID int64, key domain.SKUKey, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE forecast_details SET manual_override = TRUE, override_reason = $4
		WHERE run_id = $1 AND sku = $2 AND warehouse = $3
	`, runID, key.SKU, key.Warehouse, reason)
	return expectRow(res, err, "forecast detail")
}

func (r *forecastRepository) RecordRunError(ctx context.Context, runErr *domain.RunError) error {
	query := `
		INSERT INTO forecast_run_errors (run_id, sku, warehouse, message)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, runErr.RunID, runErr.SKU, runErr.Warehouse, runErr.Message).
		Scan(&runErr.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record run error: %w", err)
	}
	return nil
}

func (r *forecastRepository) ListRunErrors(ctx context.Context, runID int64) ([]domain.RunError, error) {
	query := `
		SELECT run_id, sku, warehouse, message, created_at
		FROM forecast_run_errors
		WHERE run_id = $1
		ORDER BY id
	`
	var rows []domain.RunError
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list run errors: %w", err)
	}
	return rows, nil
}

func (r *forecastRepository) CreateAdjustment(ctx context.Context, adj *domain.ForecastAdjustment) error {
	query := `
		INSERT INTO forecast_adjustments (
			run_id, sku, warehouse, month_index, original_qty, adjusted_qty, reason, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		adj.RunID, adj.SKU, adj.Warehouse, adj.MonthIndex, adj.OriginalQty, adj.AdjustedQty,
		adj.Reason, adj.CreatedBy,
	).Scan(&adj.ID, &adj.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create forecast adjustment: %w", err)
	}
	return nil
}

func (r *forecastRepository) ListAdjustments(ctx context.Context, runID int64, key domain.SKUKey) ([]domain.ForecastAdjustment, error) {
	query := `
		SELECT id, run_id, sku, warehouse, month_index, original_qty, adjusted_qty, reason,
			created_by, created_at
		FROM forecast_adjustments
		WHERE run_id = $1 AND sku = $2 AND warehouse = $3
		ORDER BY id
	`
	var rows []domain.ForecastAdjustment
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, runID, key.SKU, key.Warehouse); err != nil {
		return nil, fmt.Errorf("failed to list forecast adjustments: %w", err)
	}
	return rows, nil
}
