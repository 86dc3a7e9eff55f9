package domain

import "time"

// ForecastAccuracyRecord compares one forecast month against realised demand
type ForecastAccuracyRecord struct {
	ID                  int64           `json:"id" db:"id"`
	RunID               int64           `json:"run_id" db:"run_id"`
	SKU                 string          `json:"sku" db:"sku"`
	Warehouse           string          `json:"warehouse" db:"warehouse"`
	ForecastDate        time.Time       `json:"forecast_date" db:"forecast_date"`
	PeriodStart         time.Time       `json:"period_start" db:"period_start"`
	PeriodEnd           time.Time       `json:"period_end" db:"period_end"`
	PredictedDemand     float64         `json:"predicted_demand" db:"predicted_demand"`
	ActualDemand        *float64        `json:"actual_demand" db:"actual_demand"`
	AbsoluteError       *float64        `json:"absolute_error" db:"absolute_error"`
	PercentageError     *float64        `json:"percentage_error" db:"percentage_error"`
	ABCClass            string          `json:"abc_class" db:"abc_class"`
	XYZClass            string          `json:"xyz_class" db:"xyz_class"`
	VolatilityClass     VolatilityClass `json:"volatility_class" db:"volatility_class"`
	DataQuality         float64         `json:"data_quality_score" db:"data_quality_score"`
	SeasonalConfidence  float64         `json:"seasonal_confidence" db:"seasonal_confidence"`
	GrowthRate          float64         `json:"growth_rate" db:"growth_rate"`
	StockoutAffected    bool            `json:"stockout_affected" db:"stockout_affected"`
	LearningApplied     bool            `json:"learning_applied" db:"learning_applied"`
	LearningAppliedDate *time.Time      `json:"learning_applied_date" db:"learning_applied_date"`
	ActualRecordedAt    *time.Time      `json:"actual_recorded_at" db:"actual_recorded_at"`
}

// Key returns the SKU/warehouse key of the record
func (r ForecastAccuracyRecord) Key() SKUKey {
	return SKUKey{SKU: r.SKU, Warehouse: r.Warehouse}
}

// HasActual reports whether realised demand has been recorded
func (r ForecastAccuracyRecord) HasActual() bool {
	return r.ActualDemand != nil
}

// AdjustmentType is the kind of parameter change a learning adjustment proposes
type AdjustmentType string

const (
	AdjustmentGrowthRate      AdjustmentType = "growth_rate"
	AdjustmentSeasonalFactor  AdjustmentType = "seasonal_factor"
	AdjustmentMethodSwitch    AdjustmentType = "method_switch"
	AdjustmentVolatility      AdjustmentType = "volatility_adjustment"
	AdjustmentCategoryDefault AdjustmentType = "category_default"
)

// AutoApplicable reports whether the adjustment changes a forecast parameter
// that can be applied without an operator
func (t AdjustmentType) AutoApplicable() bool {
	return t == AdjustmentGrowthRate || t == AdjustmentSeasonalFactor
}

// LearningAdjustment is a recommended parameter change derived from accuracy history
type LearningAdjustment struct {
	ID                      int64          `json:"id" db:"id"`
	SKU                     string         `json:"sku" db:"sku"`
	Warehouse               string         `json:"warehouse" db:"warehouse"`
	Category                string         `json:"category,omitempty" db:"category"`
	Type                    AdjustmentType `json:"adjustment_type" db:"adjustment_type"`
	Month                   *int           `json:"month,omitempty" db:"month"`
	OriginalValue           float64        `json:"original_value" db:"original_value"`
	AdjustedValue           float64        `json:"adjusted_value" db:"adjusted_value"`
	Magnitude               float64        `json:"adjustment_magnitude" db:"adjustment_magnitude"`
	Confidence              float64        `json:"confidence_score" db:"confidence_score"`
	Reason                  string         `json:"learning_reason" db:"learning_reason"`
	ExpectedMAPEImprovement float64        `json:"expected_mape_improvement" db:"expected_mape_improvement"`
	SourceRecordIDs         Int64List      `json:"source_record_ids" db:"source_record_ids"`
	Applied                 bool           `json:"applied" db:"applied"`
	AppliedDate             *time.Time     `json:"applied_date" db:"applied_date"`
	CreatedAt               time.Time      `json:"created_at" db:"created_at"`
}

// Key returns the SKU/warehouse key of the adjustment
func (a LearningAdjustment) Key() SKUKey {
	return SKUKey{SKU: a.SKU, Warehouse: a.Warehouse}
}

// AccuracySummary aggregates forecast error for a SKU/warehouse
type AccuracySummary struct {
	SKU              string  `json:"sku" db:"sku"`
	Warehouse        string  `json:"warehouse" db:"warehouse"`
	Periods          int     `json:"periods" db:"periods"`
	MAPE             float64 `json:"mape" db:"mape"`
	Bias             float64 `json:"bias" db:"bias"`
	StockoutExcluded int     `json:"stockout_excluded" db:"stockout_excluded"`
}

// Int64List is a list of ids stored as JSON
type Int64List []int64
