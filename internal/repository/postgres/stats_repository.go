package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

type statsRepository struct {
	db *DB
}

func NewStatsRepository(db *DB) *statsRepository {
	return &statsRepository{db: db}
}

func (r *statsRepository) GetDemandStat(ctx context.Context, key domain.SKUKey) (*domain.DemandStat, error) {
	query := `
		SELECT sku, warehouse, demand_3mo_weighted, demand_6mo_weighted, demand_3mo_simple,
			demand_6mo_simple, demand_std_dev, coefficient_variation, volatility_class,
			sample_size_months, stockout_months, data_quality_score, cache_valid,
			invalidation_reason, calculated_at, version
		FROM demand_stats
		WHERE sku = $1 AND warehouse = $2
	`
	var stat domain.DemandStat
	if err := r.db.GetContext(ctx, &stat, query, key.SKU, key.Warehouse); err != nil {
		return nil, notFound(err, "demand stat")
	}
	return &stat, nil
}

// SaveDemandStat writes the whole record so readers never see a mix of old
// and new fields. The update only applies while the stored version still
// equals stat.Version.
func (r *statsRepository) SaveDemandStat(ctx context.Context, stat *domain.DemandStat) error {
	query := `
		INSERT INTO demand_stats (
			sku, warehouse, demand_3mo_weighted, demand_6mo_weighted, demand_3mo_simple,
			demand_6mo_simple, demand_std_dev, coefficient_variation, volatility_class,
			sample_size_months, stockout_months, data_quality_score, cache_valid,
			invalidation_reason, calculated_at, version
		) VALUES (
			:sku, :warehouse, :demand_3mo_weighted, :demand_6mo_weighted, :demand_3mo_simple,
			:demand_6mo_simple, :demand_std_dev, :coefficient_variation, :volatility_class,
			:sample_size_months, :stockout_months, :data_quality_score, :cache_valid,
			:invalidation_reason, :calculated_at, :version
		)
		ON CONFLICT (sku, warehouse) DO UPDATE SET
			demand_3mo_weighted = EXCLUDED.demand_3mo_weighted,
			demand_6mo_weighted = EXCLUDED.demand_6mo_weighted,
			demand_3mo_simple = EXCLUDED.demand_3mo_simple,
			demand_6mo_simple = EXCLUDED.demand_6mo_simple,
			demand_std_dev = EXCLUDED.demand_std_dev,
			coefficient_variation = EXCLUDED.coefficient_variation,
			volatility_class = EXCLUDED.volatility_class,
			sample_size_months = EXCLUDED.sample_size_months,
			stockout_months = EXCLUDED.stockout_months,
			data_quality_score = EXCLUDED.data_quality_score,
			cache_valid = EXCLUDED.cache_valid,
			invalidation_reason = EXCLUDED.invalidation_reason,
			calculated_at = EXCLUDED.calculated_at
		WHERE demand_stats.version = EXCLUDED.version
	`
	res, err := r.db.NamedExecContext(ctx, query, stat)
	if err != nil {
		return fmt.Errorf("failed to save demand stat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save demand stat: %w", err)
	}
	if n == 0 {
		return domain.ErrStaleStat
	}
	return nil
}

func (r *statsRepository) InvalidateDemandStat(ctx context.Context, key domain.SKUKey, reason string) error {
	query := `
		INSERT INTO demand_stats (sku, warehouse, volatility_class, cache_valid, invalidation_reason, calculated_at, version)
		VALUES ($1, $2, 'unknown', FALSE, $3, NOW(), 1)
		ON CONFLICT (sku, warehouse) DO UPDATE SET
			cache_valid = FALSE,
			invalidation_reason = EXCLUDED.invalidation_reason,
			version = demand_stats.version + 1
	`
	if _, err := r.db.ExecContext(ctx, query, key.SKU, key.Warehouse, reason); err != nil {
		return fmt.Errorf("failed to invalidate demand stat: %w", err)
	}
	return nil
}

func (r *statsRepository) GetSeasonalFactors(ctx context.Context, key domain.SKUKey) ([]domain.SeasonalFactor, error) {
	query := `
		SELECT sku, warehouse, month, factor, confidence_level, sample_size, pattern_type,
			pattern_strength, statistical_significance, p_value, learned_multiplier, calculated_at
		FROM seasonal_factors
		WHERE sku = $1 AND warehouse = $2
		ORDER BY month
	`
	var factors []domain.SeasonalFactor
	if err := sqlx.SelectContext(ctx, r.db, &factors, query, key.SKU, key.Warehouse); err != nil {
		return nil, fmt.Errorf("failed to get seasonal factors: %w", err)
	}
	if len(factors) == 0 {
		return nil, domain.ErrNotFound
	}
	return factors, nil
}

func (r *statsRepository) SaveSeasonalFactors(ctx context.Context, key domain.SKUKey, factors []domain.SeasonalFactor) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM seasonal_factors WHERE sku = $1 AND warehouse = $2`, key.SKU, key.Warehouse); err != nil {
			return fmt.Errorf("failed to clear seasonal factors: %w", err)
		}

		query := `
			INSERT INTO seasonal_factors (
				sku, warehouse, month, factor, confidence_level, sample_size, pattern_type,
				pattern_strength, statistical_significance, p_value, learned_multiplier, calculated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, f := range factors {
			_, err := stmt.ExecContext(ctx,
				key.SKU, key.Warehouse, f.Month, f.Factor, f.Confidence, f.SampleSize,
				f.PatternType, f.PatternStrength, f.StatisticalSignificance, f.PValue, f.LearnedMultiplier, f.CalculatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert seasonal factor %d: %w", f.Month, err)
			}
		}
		return nil
	})
}

func (r *statsRepository) ListSeasonalAdjustments(ctx context.Context, key domain.SKUKey) ([]domain.SeasonalAdjustment, error) {
	query := `
		SELECT sku, warehouse, month, multiplier, adjustment_id, updated_at
		FROM seasonal_adjustments
		WHERE sku = $1 AND warehouse = $2
		ORDER BY month
	`
	var out []domain.SeasonalAdjustment
	if err := sqlx.SelectContext(ctx, r.db, &out, query, key.SKU, key.Warehouse); err != nil {
		return nil, fmt.Errorf("failed to list seasonal adjustments: %w", err)
	}
	return out, nil
}

func (r *statsRepository) SaveSeasonalAdjustment(ctx context.Context, adj *domain.SeasonalAdjustment) error {
	query := `
		INSERT INTO seasonal_adjustments (sku, warehouse, month, multiplier, adjustment_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (sku, warehouse, month) DO UPDATE SET
			multiplier = EXCLUDED.multiplier,
			adjustment_id = EXCLUDED.adjustment_id,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`
	if err := r.db.QueryRowContext(ctx, query,
		adj.SKU, adj.Warehouse, adj.Month, adj.Multiplier, adj.AdjustmentID,
	).Scan(&adj.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save seasonal adjustment: %w", err)
	}
	return nil
}
