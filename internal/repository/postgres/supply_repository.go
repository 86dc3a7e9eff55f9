package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

type supplyRepository struct {
	db *DB
}

func NewSupplyRepository(db *DB) *supplyRepository {
	return &supplyRepository{db: db}
}

const shipmentColumns = `id, sku, warehouse, supplier_id, quantity, order_date, expected_arrival,
	lead_time_days, is_estimated, status, received_at`

func (r *supplyRepository) ListOpenShipments(ctx context.Context, key domain.SKUKey) ([]domain.PendingShipment, error) {
	query := `SELECT ` + shipmentColumns + `
		FROM pending_shipments
		WHERE sku = $1 AND warehouse = $2 AND status IN ($3, $4)
		ORDER BY id
	`
	var rows []domain.PendingShipment
	err := sqlx.SelectContext(ctx, r.db, &rows, query,
		key.SKU, key.Warehouse, domain.ShipmentOrdered, domain.ShipmentShipped)
	if err != nil {
		return nil, fmt.Errorf("failed to list open shipments: %w", err)
	}
	return rows, nil
}

// ListReceivedShipments returns shipments received in [from, to)
func (r *supplyRepository) ListReceivedShipments(ctx context.Context, key domain.SKUKey, from, to time.Time) ([]domain.PendingShipment, error) {
	query := `SELECT ` + shipmentColumns + `
		FROM pending_shipments
		WHERE sku = $1 AND warehouse = $2 AND status = $3
			AND received_at >= $4 AND received_at < $5
		ORDER BY received_at, id
	`
	var rows []domain.PendingShipment
	err := sqlx.SelectContext(ctx, r.db, &rows, query,
		key.SKU, key.Warehouse, domain.ShipmentReceived, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list received shipments: %w", err)
	}
	return rows, nil
}

func (r *supplyRepository) UpsertShipment(ctx context.Context, sh *domain.PendingShipment) error {
	if sh.ID == 0 {
		query := `
			INSERT INTO pending_shipments (
				sku, warehouse, supplier_id, quantity, order_date, expected_arrival,
				lead_time_days, is_estimated, status, received_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`
		err := r.db.QueryRowContext(ctx, query,
			sh.SKU, sh.Warehouse, sh.SupplierID, sh.Quantity, sh.OrderDate, sh.ExpectedArrival,
			sh.LeadTimeDays, sh.IsEstimated, sh.Status, sh.ReceivedAt,
		).Scan(&sh.ID)
		if err != nil {
			return fmt.Errorf("failed to insert shipment: %w", err)
		}
		return nil
	}

	query := `
		UPDATE pending_shipments SET
			sku = :sku,
			warehouse = :warehouse,
			supplier_id = :supplier_id,
			quantity = :quantity,
			order_date = :order_date,
			expected_arrival = :expected_arrival,
			lead_time_days = :lead_time_days,
			is_estimated = :is_estimated,
			status = :status,
			received_at = :received_at
		WHERE id = :id
	`
	res, err := r.db.NamedExecContext(ctx, query, sh)
	return expectRow(res, err, "shipment")
}

// GetLeadTimeStats derives lead time percentiles from received shipments.
// Reliability is the share received on or before the expected arrival.
func (r *supplyRepository) GetLeadTimeStats(ctx context.Context, supplierID int64, warehouse string) (*domain.SupplierLeadTime, error) {
	query := `
		WITH received AS (
			SELECT
				EXTRACT(EPOCH FROM (received_at - order_date)) / 86400 AS days,
				expected_arrival IS NOT NULL AND received_at <= expected_arrival AS on_time
			FROM pending_shipments
			WHERE supplier_id = $1
			  AND warehouse = $2
			  AND received_at IS NOT NULL
			  AND received_at >= order_date
		)
		SELECT
			$1::bigint AS supplier_id,
			$2::text AS warehouse,
			COALESCE(AVG(days), 0)::float AS avg_days,
			COALESCE(percentile_cont(0.5) WITHIN GROUP (ORDER BY days), 0)::float AS median_days,
			COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY days), 0)::float AS p95_days,
			COALESCE(AVG(CASE WHEN on_time THEN 1 ELSE 0 END), 0)::float AS reliability_score,
			COUNT(*) AS sample_count
		FROM received
	`
	var stats domain.SupplierLeadTime
	if err := r.db.GetContext(ctx, &stats, query, supplierID, warehouse); err != nil {
		return nil, fmt.Errorf("failed to get lead time stats: %w", err)
	}
	if stats.SampleCount == 0 {
		return nil, domain.ErrNotFound
	}
	return &stats, nil
}
