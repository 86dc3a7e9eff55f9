// backend-go/internal/domain/models.go
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SKUKey identifies a SKU stocked at a specific warehouse
type SKUKey struct {
	SKU       string `json:"sku" db:"sku"`
	Warehouse string `json:"warehouse" db:"warehouse"`
}

func (k SKUKey) String() string {
	return fmt.Sprintf("%s@%s", k.SKU, k.Warehouse)
}

// GrowthStatus is the coarse growth flag kept on the SKU master
type GrowthStatus string

const (
	GrowthStatusNormal    GrowthStatus = "normal"
	GrowthStatusViral     GrowthStatus = "viral"
	GrowthStatusDeclining GrowthStatus = "declining"
)

// SKU represents a row of the SKU master
type SKU struct {
	SKU              string          `json:"sku" db:"sku"`
	Description      string          `json:"description" db:"description"`
	Category         string          `json:"category" db:"category"`
	SupplierID       int64           `json:"supplier_id" db:"supplier_id"`
	ABCClass         string          `json:"abc_class" db:"abc_class"`
	XYZClass         string          `json:"xyz_class" db:"xyz_class"`
	Status           string          `json:"status" db:"status"`
	GrowthStatus     GrowthStatus    `json:"growth_status" db:"growth_status"`
	GrowthOverride   *float64        `json:"growth_rate_override" db:"growth_rate_override"`
	TransferMultiple int             `json:"transfer_multiple" db:"transfer_multiple"`
	Cost             decimal.Decimal `json:"cost" db:"cost"`
	AvgSellingPrice  decimal.Decimal `json:"avg_selling_price" db:"avg_selling_price"`
	LaunchedAt       *time.Time      `json:"launched_at" db:"launched_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the SKU should be planned
func (s SKU) IsActive() bool {
	return s.Status == "" || s.Status == "active"
}

// KeyGrowthOverride pins the growth rate of a SKU at one warehouse. Applied
// learning adjustments land here.
type KeyGrowthOverride struct {
	SKU          string    `json:"sku" db:"sku"`
	Warehouse    string    `json:"warehouse" db:"warehouse"`
	Rate         float64   `json:"growth_rate" db:"growth_rate"`
	AdjustmentID *int64    `json:"adjustment_id,omitempty" db:"adjustment_id"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// MonthlySales is one month of raw sales and stockout days for a SKU/warehouse
type MonthlySales struct {
	SKU          string    `json:"sku" db:"sku"`
	Warehouse    string    `json:"warehouse" db:"warehouse"`
	Month        time.Time `json:"month" db:"month"`
	UnitsSold    float64   `json:"units_sold" db:"units_sold"`
	StockoutDays int       `json:"stockout_days" db:"stockout_days"`
}

// Key returns the SKU/warehouse key of the row
func (m MonthlySales) Key() SKUKey {
	return SKUKey{SKU: m.SKU, Warehouse: m.Warehouse}
}

// Inventory is the current on-hand snapshot for a SKU/warehouse
type Inventory struct {
	SKU       string    `json:"sku" db:"sku"`
	Warehouse string    `json:"warehouse" db:"warehouse"`
	OnHand    float64   `json:"on_hand" db:"on_hand"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SupplierLeadTime holds lead time percentile statistics per supplier and destination
type SupplierLeadTime struct {
	SupplierID       int64   `json:"supplier_id" db:"supplier_id"`
	Warehouse        string  `json:"warehouse" db:"warehouse"`
	AvgDays          float64 `json:"avg_days" db:"avg_days"`
	MedianDays       float64 `json:"median_days" db:"median_days"`
	P95Days          float64 `json:"p95_days" db:"p95_days"`
	ReliabilityScore float64 `json:"reliability_score" db:"reliability_score"`
	SampleCount      int     `json:"sample_count" db:"sample_count"`
}

// PendingShipment is an open or closed inbound purchase order line
type PendingShipment struct {
	ID              int64          `json:"id" db:"id"`
	SKU             string         `json:"sku" db:"sku"`
	Warehouse       string         `json:"warehouse" db:"warehouse"`
	SupplierID      int64          `json:"supplier_id" db:"supplier_id"`
	Quantity        float64        `json:"quantity" db:"quantity"`
	OrderDate       time.Time      `json:"order_date" db:"order_date"`
	ExpectedArrival *time.Time     `json:"expected_arrival" db:"expected_arrival"`
	LeadTimeDays    int            `json:"lead_time_days" db:"lead_time_days"`
	IsEstimated     bool           `json:"is_estimated" db:"is_estimated"`
	Status          ShipmentStatus `json:"status" db:"status"`
	ReceivedAt      *time.Time     `json:"received_at" db:"received_at"`
}

// MonthStart truncates t to the first day of its month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of days of the month containing t
func DaysInMonth(t time.Time) int {
	return MonthStart(t).AddDate(0, 1, -1).Day()
}
