package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ForecastMonths is the horizon of every forecast detail row
const ForecastMonths = 12

// ForecastRun is a named forecast generation batch
type ForecastRun struct {
	ID             int64      `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Status         RunStatus  `json:"status" db:"status"`
	QueuePosition  *int       `json:"queue_position" db:"queue_position"`
	ForecastStart  time.Time  `json:"forecast_start" db:"forecast_start"`
	GrowthOverride *float64   `json:"growth_rate_override" db:"growth_rate_override"`
	SKUFilter      StringList `json:"sku_filter" db:"sku_filter"`
	WarehouseList  StringList `json:"warehouses" db:"warehouses"`
	TotalSKUs      int        `json:"total_skus" db:"total_skus"`
	ProcessedSKUs  int        `json:"processed_skus" db:"processed_skus"`
	FailedSKUs     int        `json:"failed_skus" db:"failed_skus"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	QueuedAt       *time.Time `json:"queued_at" db:"queued_at"`
	StartedAt      *time.Time `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at" db:"completed_at"`
	Archived       bool       `json:"archived" db:"archived"`
	ArchiveKey     string     `json:"archive_key,omitempty" db:"archive_key"`
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_message"`
}

// RunError records a single SKU that failed inside a run
type RunError struct {
	RunID     int64     `json:"run_id" db:"run_id"`
	SKU       string    `json:"sku" db:"sku"`
	Warehouse string    `json:"warehouse" db:"warehouse"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ForecastDetail is the 12-month forecast for one SKU/warehouse in a run
type ForecastDetail struct {
	RunID           int64           `json:"run_id" db:"run_id"`
	SKU             string          `json:"sku" db:"sku"`
	Warehouse       string          `json:"warehouse" db:"warehouse"`
	MonthlyQty      QtyCells        `json:"monthly_qty" db:"monthly_qty"`
	MonthlyRevenue  RevenueCells    `json:"monthly_revenue" db:"monthly_revenue"`
	TotalQty        float64         `json:"total_qty_forecast" db:"total_qty_forecast"`
	AvgMonthlyQty   float64         `json:"avg_monthly_qty" db:"avg_monthly_qty"`
	TotalRevenue    decimal.Decimal `json:"total_revenue_forecast" db:"total_revenue_forecast"`
	AvgMonthlyRev   decimal.Decimal `json:"avg_monthly_revenue" db:"avg_monthly_revenue"`
	BaseDemand      float64         `json:"base_demand_used" db:"base_demand_used"`
	SeasonalPattern PatternType     `json:"seasonal_pattern_applied" db:"seasonal_pattern_applied"`
	GrowthRate      float64         `json:"growth_rate_applied" db:"growth_rate_applied"`
	GrowthSource    GrowthSource    `json:"growth_rate_source" db:"growth_rate_source"`
	Confidence      float64         `json:"confidence_score" db:"confidence_score"`
	Method          string          `json:"method_used" db:"method_used"`
	ManualOverride  bool            `json:"manual_override" db:"manual_override"`
	OverrideReason  string          `json:"override_reason,omitempty" db:"override_reason"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Key returns the SKU/warehouse key of the detail
func (d ForecastDetail) Key() SKUKey {
	return SKUKey{SKU: d.SKU, Warehouse: d.Warehouse}
}

// ForecastAdjustment is an audit row for a manual change to a forecast cell
type ForecastAdjustment struct {
	ID          int64     `json:"id" db:"id"`
	RunID       int64     `json:"run_id" db:"run_id"`
	SKU         string    `json:"sku" db:"sku"`
	Warehouse   string    `json:"warehouse" db:"warehouse"`
	MonthIndex  int       `json:"month_index" db:"month_index"`
	OriginalQty float64   `json:"original_qty" db:"original_qty"`
	AdjustedQty float64   `json:"adjusted_qty" db:"adjusted_qty"`
	Reason      string    `json:"reason" db:"reason"`
	CreatedBy   string    `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// RunFilter narrows run listings
type RunFilter struct {
	Status          RunStatus
	IncludeArchived bool
	Page            int
	PageSize        int
}

// QtyCells is a list of monthly quantities stored as JSON
type QtyCells []float64

func (c QtyCells) Value() (driver.Value, error) {
	return json.Marshal([]float64(c))
}

func (c *QtyCells) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// RevenueCells is a list of monthly revenue amounts stored as JSON
type RevenueCells []decimal.Decimal

func (c RevenueCells) Value() (driver.Value, error) {
	return json.Marshal([]decimal.Decimal(c))
}

func (c *RevenueCells) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// StringList is a list of strings stored as JSON
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	case nil:
		return nil
	}
	return fmt.Errorf("cannot scan %T as json", src)
}

func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int64(l))
}

func (l *Int64List) Scan(src interface{}) error {
	return scanJSON(src, l)
}
