package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

// CatalogRepository reads the SKU master and on-hand inventory
type CatalogRepository interface {
	GetSKU(ctx context.Context, sku string) (*domain.SKU, error)
	ListSKUs(ctx context.Context) ([]domain.SKU, error)
	UpsertSKU(ctx context.Context, sku *domain.SKU) error
	GetKeyGrowthOverride(ctx context.Context, key domain.SKUKey) (*domain.KeyGrowthOverride, error)
	SetKeyGrowthOverride(ctx context.Context, override *domain.KeyGrowthOverride) error
	GetInventory(ctx context.Context, key domain.SKUKey) (*domain.Inventory, error)
	UpsertInventory(ctx context.Context, inv *domain.Inventory) error
}

// SalesRepository stores monthly sales with stockout days
type SalesRepository interface {
	// ListMonthlySales returns the history of a key ordered by month ascending
	ListMonthlySales(ctx context.Context, key domain.SKUKey) ([]domain.MonthlySales, error)
	// ListCategorySales sums the history of every SKU in a category per month
	ListCategorySales(ctx context.Context, category, warehouse string) ([]domain.MonthlySales, error)
	GetMonthlySales(ctx context.Context, key domain.SKUKey, month time.Time) (*domain.MonthlySales, error)
	UpsertMonthlySales(ctx context.Context, rows []domain.MonthlySales) error
	ListSalesKeys(ctx context.Context) ([]domain.SKUKey, error)
}

// SupplyRepository exposes inbound shipments and supplier lead time statistics
type SupplyRepository interface {
	ListOpenShipments(ctx context.Context, key domain.SKUKey) ([]domain.PendingShipment, error)
	UpsertShipment(ctx context.Context, shipment *domain.PendingShipment) error
	// ListReceivedShipments returns receipts of a key with received_at in [from, to)
	ListReceivedShipments(ctx context.Context, key domain.SKUKey, from, to time.Time) ([]domain.PendingShipment, error)
	GetLeadTimeStats(ctx context.Context, supplierID int64, warehouse string) (*domain.SupplierLeadTime, error)
}
