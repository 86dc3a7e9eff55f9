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

type recommendationRepository struct {
	db *DB
}

func NewRecommendationRepository(db *DB) *recommendationRepository {
	return &recommendationRepository{db: db}
}

const recommendationColumns = `id, sku, warehouse, order_month, suggested_qty, confirmed_qty,
	current_inventory, pending_orders_raw, pending_orders_effective, pending_breakdown,
	corrected_demand_monthly, daily_demand, safety_stock_qty, reorder_point,
	lead_time_days_default, lead_time_days_override, expected_arrival_calculated,
	expected_arrival_override, coverage_days, coverage_months, urgency_level, advisory_urgency,
	shortfall_days, is_locked, locked_by, locked_at, created_at, updated_at`

func (r *recommendationRepository) GetRecommendation(ctx context.Context, id int64) (*domain.OrderRecommendation, error) {
	var rec domain.OrderRecommendation
	query := `SELECT ` + recommendationColumns + ` FROM order_recommendations WHERE id = $1`
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, notFound(err, "recommendation")
	}
	return &rec, nil
}

func (r *recommendationRepository) FindRecommendation(ctx context.Context, key domain.SKUKey, month time.Time) (*domain.OrderRecommendation, error) {
	var rec domain.OrderRecommendation
	query := `SELECT ` + recommendationColumns + `
		FROM order_recommendations
		WHERE sku = $1 AND warehouse = $2 AND order_month = $3
	`
	if err := r.db.GetContext(ctx, &rec, query, key.SKU, key.Warehouse, domain.MonthStart(month)); err != nil {
		return nil, notFound(err, "recommendation")
	}
	return &rec, nil
}

// SaveRecommendation upserts the computed fields. User edits on an existing
// row are kept and locked rows are refused.
func (r *recommendationRepository) SaveRecommendation(ctx context.Context, rec *domain.OrderRecommendation) error {
	rec.OrderMonth = domain.MonthStart(rec.OrderMonth)
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var locked bool
		err := tx.QueryRowContext(ctx, `
			SELECT is_locked FROM order_recommendations
			WHERE sku = $1 AND warehouse = $2 AND order_month = $3
			FOR UPDATE
		`, rec.SKU, rec.Warehouse, rec.OrderMonth).Scan(&locked)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to check recommendation lock: %w", err)
		case locked:
			return domain.ErrRecommendationLocked
		}

		query := `
			INSERT INTO order_recommendations (
				sku, warehouse, order_month, suggested_qty, current_inventory, pending_orders_raw,
				pending_orders_effective, pending_breakdown, corrected_demand_monthly, daily_demand,
				safety_stock_qty, reorder_point, lead_time_days_default, expected_arrival_calculated,
				coverage_days, coverage_months, urgency_level, advisory_urgency, shortfall_days,
				created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
				NOW(), NOW()
			)
			ON CONFLICT (sku, warehouse, order_month) DO UPDATE SET
				suggested_qty = EXCLUDED.suggested_qty,
				current_inventory = EXCLUDED.current_inventory,
				pending_orders_raw = EXCLUDED.pending_orders_raw,
				pending_orders_effective = EXCLUDED.pending_orders_effective,
				pending_breakdown = EXCLUDED.pending_breakdown,
				corrected_demand_monthly = EXCLUDED.corrected_demand_monthly,
				daily_demand = EXCLUDED.daily_demand,
				safety_stock_qty = EXCLUDED.safety_stock_qty,
				reorder_point = EXCLUDED.reorder_point,
				lead_time_days_default = EXCLUDED.lead_time_days_default,
				expected_arrival_calculated = EXCLUDED.expected_arrival_calculated,
				coverage_days = EXCLUDED.coverage_days,
				coverage_months = EXCLUDED.coverage_months,
				urgency_level = EXCLUDED.urgency_level,
				advisory_urgency = EXCLUDED.advisory_urgency,
				shortfall_days = EXCLUDED.shortfall_days,
				updated_at = NOW()
			RETURNING id, confirmed_qty, lead_time_days_override, expected_arrival_override,
				created_at, updated_at
		`
		err = tx.QueryRowContext(ctx, query,
			rec.SKU, rec.Warehouse, rec.OrderMonth, rec.SuggestedQty, rec.CurrentInventory, rec.PendingQty,
			rec.EffectivePendingQty, rec.PendingBreakdown, rec.CorrectedDemand, rec.DailyDemand,
			rec.SafetyStock, rec.ReorderPoint, rec.LeadTimeDays, rec.ExpectedArrival,
			rec.CoverageDays, rec.CoverageMonths, rec.Urgency, rec.AdvisoryUrgency, rec.ShortfallDays,
		).Scan(&rec.ID, &rec.ConfirmedQty, &rec.LeadTimeOverride, &rec.ArrivalOverride, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save recommendation for %s: %w", rec.Key(), err)
		}
		return nil
	})
}

func (r *recommendationRepository) UpdateRecommendationEdits(ctx context.Context, rec *domain.OrderRecommendation) error {
	query := `
		UPDATE order_recommendations SET
			confirmed_qty = :confirmed_qty,
			lead_time_days_override = :lead_time_days_override,
			expected_arrival_override = :expected_arrival_override,
			updated_at = NOW()
		WHERE id = :id AND is_locked = FALSE
	`
	res, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		return fmt.Errorf("failed to update recommendation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update recommendation: %w", err)
	}
	if n > 0 {
		return nil
	}
	// nothing matched: either the row is gone or someone holds the lock
	if _, err := r.GetRecommendation(ctx, rec.ID); err != nil {
		return err
	}
	return domain.ErrRecommendationLocked
}

func (r *recommendationRepository) SetRecommendationLock(ctx context.Context, id int64, locked bool, user string, at time.Time) error {
	if !locked {
		res, err := r.db.ExecContext(ctx, `
			UPDATE order_recommendations
			SET is_locked = FALSE, locked_by = '', locked_at = NULL, updated_at = NOW()
			WHERE id = $1
		`, id)
		return expectRow(res, err, "recommendation")
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE order_recommendations
		SET is_locked = TRUE, locked_by = $2, locked_at = $3, updated_at = NOW()
		WHERE id = $1 AND is_locked = FALSE
	`, id, user, at)
	if err != nil {
		return fmt.Errorf("failed to lock recommendation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to lock recommendation: %w", err)
	} else if n > 0 {
		return nil
	}
	_, err = r.GetRecommendation(ctx, id)
	return err
}

func (r *recommendationRepository) ListRecommendations(ctx context.Context, filter domain.RecommendationFilter) ([]domain.OrderRecommendation, int, error) {
	where, args := buildRecommendationFilterClause(filter, "", 1)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM order_recommendations`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count recommendations: %w", err)
	}

	query := `SELECT ` + recommendationColumns + ` FROM order_recommendations` + where + ` ORDER BY sku, warehouse`
	if limit, offset, unlimited := pageBounds(filter.Page, filter.PageSize); !unlimited {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}

	var rows []domain.OrderRecommendation
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list recommendations: %w", err)
	}
	if rows == nil {
		rows = []domain.OrderRecommendation{}
	}
	return rows, total, nil
}
