package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

type catalogRepository struct {
	db *DB
}

func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db}
}

const skuColumns = `sku, description, category, supplier_id, abc_class, xyz_class, status,
	growth_status, growth_rate_override, transfer_multiple, cost, avg_selling_price,
	launched_at, updated_at`

func (r *catalogRepository) GetSKU(ctx context.Context, sku string) (*domain.SKU, error) {
	var row domain.SKU
	query := `SELECT ` + skuColumns + ` FROM skus WHERE sku = $1`
	if err := r.db.GetContext(ctx, &row, query, sku); err != nil {
		return nil, notFound(err, "sku")
	}
	return &row, nil
}

func (r *catalogRepository) ListSKUs(ctx context.Context) ([]domain.SKU, error) {
	var rows []domain.SKU
	query := `SELECT ` + skuColumns + ` FROM skus ORDER BY sku`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list skus: %w", err)
	}
	return rows, nil
}

func (r *catalogRepository) UpsertSKU(ctx context.Context, sku *domain.SKU) error {
	query := `
		INSERT INTO skus (
			sku, description, category, supplier_id, abc_class, xyz_class, status,
			growth_status, growth_rate_override, transfer_multiple, cost,
			avg_selling_price, launched_at, updated_at
		) VALUES (
			:sku, :description, :category, :supplier_id, :abc_class, :xyz_class, :status,
			:growth_status, :growth_rate_override, :transfer_multiple, :cost,
			:avg_selling_price, :launched_at, NOW()
		)
		ON CONFLICT (sku) DO UPDATE SET
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			supplier_id = EXCLUDED.supplier_id,
			abc_class = EXCLUDED.abc_class,
			xyz_class = EXCLUDED.xyz_class,
			status = EXCLUDED.status,
			growth_status = EXCLUDED.growth_status,
			growth_rate_override = EXCLUDED.growth_rate_override,
			transfer_multiple = EXCLUDED.transfer_multiple,
			cost = EXCLUDED.cost,
			avg_selling_price = EXCLUDED.avg_selling_price,
			launched_at = EXCLUDED.launched_at,
			updated_at = NOW()
	`
	if _, err := r.db.NamedExecContext(ctx, query, sku); err != nil {
		return fmt.Errorf("failed to upsert sku: %w", err)
	}
	return nil
}

func (r *catalogRepository) GetKeyGrowthOverride(ctx context.Context, key domain.SKUKey) (*domain.KeyGrowthOverride, error) {
	var o domain.KeyGrowthOverride
	query := `
		SELECT sku, warehouse, growth_rate, adjustment_id, updated_at
		FROM growth_overrides
		WHERE sku = $1 AND warehouse = $2
	`
	if err := r.db.GetContext(ctx, &o, query, key.SKU, key.Warehouse); err != nil {
		return nil, notFound(err, "growth override")
	}
	return &o, nil
}

func (r *catalogRepository) SetKeyGrowthOverride(ctx context.Context, o *domain.KeyGrowthOverride) error {
	query := `
		INSERT INTO growth_overrides (sku, warehouse, growth_rate, adjustment_id, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (sku, warehouse) DO UPDATE SET
			growth_rate = EXCLUDED.growth_rate,
			adjustment_id = EXCLUDED.adjustment_id,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`
	if err := r.db.QueryRowContext(ctx, query, o.SKU, o.Warehouse, o.Rate, o.AdjustmentID).Scan(&o.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save growth override: %w", err)
	}
	return nil
}

func (r *catalogRepository) GetInventory(ctx context.Context, key domain.SKUKey) (*domain.Inventory, error) {
	var inv domain.Inventory
	query := `SELECT sku, warehouse, on_hand, updated_at FROM inventory WHERE sku = $1 AND warehouse = $2`
	if err := r.db.GetContext(ctx, &inv, query, key.SKU, key.Warehouse); err != nil {
		return nil, notFound(err, "inventory")
	}
	return &inv, nil
}

func (r *catalogRepository) UpsertInventory(ctx context.Context, inv *domain.Inventory) error {
	query := `
		INSERT INTO inventory (sku, warehouse, on_hand, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (sku, warehouse) DO UPDATE SET
			on_hand = EXCLUDED.on_hand,
			updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, inv.SKU, inv.Warehouse, inv.OnHand); err != nil {
		return fmt.Errorf("failed to upsert inventory: %w", err)
	}
	return nil
}

func (r *catalogRepository) ListMonthlySales(ctx context.Context, key domain.SKUKey) ([]domain.MonthlySales, error) {
	query := `
		SELECT sku, warehouse, month, units_sold, stockout_days
		FROM monthly_sales
		WHERE sku = $1 AND warehouse = $2
		ORDER BY month ASC
	`
	var rows []domain.MonthlySales
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, key.SKU, key.Warehouse); err != nil {
		return nil, fmt.Errorf("failed to list monthly sales: %w", err)
	}
	return rows, nil
}

func (r *catalogRepository) ListCategorySales(ctx context.Context, category, warehouse string) ([]domain.MonthlySales, error) {
	query := `
		SELECT
			$1::text AS sku,
			ms.warehouse,
			ms.month,
			SUM(ms.units_sold) AS units_sold,
			MAX(ms.stockout_days) AS stockout_days
		FROM monthly_sales ms
		JOIN skus s ON s.sku = ms.sku
		WHERE s.category = $1 AND ms.warehouse = $2
		GROUP BY ms.warehouse, ms.month
		ORDER BY ms.month ASC
	`
	var rows []domain.MonthlySales
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, category, warehouse); err != nil {
		return nil, fmt.Errorf("failed to list category sales: %w", err)
	}
	return rows, nil
}

func (r *catalogRepository) GetMonthlySales(ctx context.Context, key domain.SKUKey, month time.Time) (*domain.MonthlySales, error) {
	var row domain.MonthlySales
	query := `
		SELECT sku, warehouse, month, units_sold, stockout_days
		FROM monthly_sales
		WHERE sku = $1 AND warehouse = $2 AND month = $3
	`
	if err := r.db.GetContext(ctx, &row, query, key.SKU, key.Warehouse, domain.MonthStart(month)); err != nil {
		return nil, notFound(err, "monthly sales")
	}
	return &row, nil
}

func (r *catalogRepository) UpsertMonthlySales(ctx context.Context, rows []domain.MonthlySales) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO monthly_sales (sku, warehouse, month, units_sold, stockout_days)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (sku, warehouse, month)
			DO UPDATE SET
				units_sold = EXCLUDED.units_sold,
				stockout_days = EXCLUDED.stockout_days
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			_, err := stmt.ExecContext(ctx,
				row.SKU,
				row.Warehouse,
				domain.MonthStart(row.Month),
				row.UnitsSold,
				row.StockoutDays,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert monthly sales for %s: %w", row.Key(), err)
			}
		}
		return nil
	})
}

func (r *catalogRepository) ListSalesKeys(ctx context.Context) ([]domain.SKUKey, error) {
	query := `SELECT DISTINCT sku, warehouse FROM monthly_sales ORDER BY sku, warehouse`
	var keys []domain.SKUKey
	if err := sqlx.SelectContext(ctx, r.db, &keys, query); err != nil {
		return nil, fmt.Errorf("failed to list sales keys: %w", err)
	}
	return keys, nil
}
