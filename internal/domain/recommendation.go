package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// PendingBreakdown splits pending supply by arrival bucket
type PendingBreakdown struct {
	Immediate       float64 `json:"immediate"`
	NearTerm        float64 `json:"near_term"`
	MediumTerm      float64 `json:"medium_term"`
	LongTerm        float64 `json:"long_term"`
	BeyondHorizon   float64 `json:"beyond_horizon"`
	EstimatedShare  float64 `json:"estimated_share"`
	OverdueQuantity float64 `json:"overdue_quantity"`
}

func (b PendingBreakdown) Value() (driver.Value, error) {
	return json.Marshal(b)
}

func (b *PendingBreakdown) Scan(src interface{}) error {
	return scanJSON(src, b)
}

// OrderRecommendation is the monthly purchase suggestion for a SKU/warehouse
type OrderRecommendation struct {
	ID                  int64            `json:"id" db:"id"`
	SKU                 string           `json:"sku" db:"sku"`
	Warehouse           string           `json:"warehouse" db:"warehouse"`
	OrderMonth          time.Time        `json:"order_month" db:"order_month"`
	SuggestedQty        float64          `json:"suggested_qty" db:"suggested_qty"`
	ConfirmedQty        *float64         `json:"confirmed_qty" db:"confirmed_qty"`
	CurrentInventory    float64          `json:"current_inventory" db:"current_inventory"`
	PendingQty          float64          `json:"pending_orders_raw" db:"pending_orders_raw"`
	EffectivePendingQty float64          `json:"pending_orders_effective" db:"pending_orders_effective"`
	PendingBreakdown    PendingBreakdown `json:"pending_breakdown" db:"pending_breakdown"`
	CorrectedDemand     float64          `json:"corrected_demand_monthly" db:"corrected_demand_monthly"`
	DailyDemand         float64          `json:"daily_demand" db:"daily_demand"`
	SafetyStock         float64          `json:"safety_stock_qty" db:"safety_stock_qty"`
	ReorderPoint        float64          `json:"reorder_point" db:"reorder_point"`
	LeadTimeDays        int              `json:"lead_time_days_default" db:"lead_time_days_default"`
	LeadTimeOverride    *int             `json:"lead_time_days_override" db:"lead_time_days_override"`
	ExpectedArrival     time.Time        `json:"expected_arrival_calculated" db:"expected_arrival_calculated"`
	ArrivalOverride     *time.Time       `json:"expected_arrival_override" db:"expected_arrival_override"`
	CoverageDays        *float64         `json:"coverage_days" db:"coverage_days"`
	CoverageMonths      *float64         `json:"coverage_months" db:"coverage_months"`
	Urgency             Urgency          `json:"urgency_level" db:"urgency_level"`
	AdvisoryUrgency     Urgency          `json:"advisory_urgency" db:"advisory_urgency"`
	ShortfallDays       float64          `json:"shortfall_days" db:"shortfall_days"`
	Locked              bool             `json:"is_locked" db:"is_locked"`
	LockedBy            string           `json:"locked_by,omitempty" db:"locked_by"`
	LockedAt            *time.Time       `json:"locked_at" db:"locked_at"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// Key returns the SKU/warehouse key of the recommendation
func (r OrderRecommendation) Key() SKUKey {
	return SKUKey{SKU: r.SKU, Warehouse: r.Warehouse}
}

// EffectiveLeadTime returns the user override when present
func (r OrderRecommendation) EffectiveLeadTime() int {
	if r.LeadTimeOverride != nil {
		return *r.LeadTimeOverride
	}
	return r.LeadTimeDays
}

// EffectiveArrival returns the user arrival override when present
func (r OrderRecommendation) EffectiveArrival() time.Time {
	if r.ArrivalOverride != nil {
		return *r.ArrivalOverride
	}
	return r.ExpectedArrival
}

// RecommendationFilter narrows recommendation listings
type RecommendationFilter struct {
	OrderMonth time.Time
	Warehouse  string
	Urgency    Urgency
	Page       int
	PageSize   int
}

// RecommendationEdit carries user edits to an unlocked recommendation
type RecommendationEdit struct {
	ConfirmedQty     *float64   `json:"confirmed_qty"`
	LeadTimeOverride *int       `json:"lead_time_days_override"`
	ArrivalOverride  *time.Time `json:"expected_arrival_override"`
}
