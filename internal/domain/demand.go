package domain

import "time"

// VolatilityClass buckets a SKU by coefficient of variation
type VolatilityClass string

const (
	VolatilityLow     VolatilityClass = "low"
	VolatilityMedium  VolatilityClass = "medium"
	VolatilityHigh    VolatilityClass = "high"
	VolatilityUnknown VolatilityClass = "unknown"
)

// DemandStat holds stockout-corrected demand statistics for a SKU/warehouse
type DemandStat struct {
	SKU                string          `json:"sku" db:"sku"`
	Warehouse          string          `json:"warehouse" db:"warehouse"`
	Demand3MoWeighted  float64         `json:"demand_3mo_weighted" db:"demand_3mo_weighted"`
	Demand6MoWeighted  float64         `json:"demand_6mo_weighted" db:"demand_6mo_weighted"`
	Demand3MoSimple    float64         `json:"demand_3mo_simple" db:"demand_3mo_simple"`
	Demand6MoSimple    float64         `json:"demand_6mo_simple" db:"demand_6mo_simple"`
	StdDev             float64         `json:"demand_std_dev" db:"demand_std_dev"`
	CV                 *float64        `json:"coefficient_variation" db:"coefficient_variation"`
	VolatilityClass    VolatilityClass `json:"volatility_class" db:"volatility_class"`
	SampleSize         int             `json:"sample_size_months" db:"sample_size_months"`
	StockoutMonths     int             `json:"stockout_months" db:"stockout_months"`
	DataQuality        float64         `json:"data_quality_score" db:"data_quality_score"`
	IsValid            bool            `json:"cache_valid" db:"cache_valid"`
	InvalidationReason string          `json:"invalidation_reason,omitempty" db:"invalidation_reason"`
	// Version counts invalidations; a save only lands when it still matches
	Version            int64           `json:"version" db:"version"`
	CalculatedAt       time.Time       `json:"calculated_at" db:"calculated_at"`
}

// Key returns the SKU/warehouse key of the stat
func (d DemandStat) Key() SKUKey {
	return SKUKey{SKU: d.SKU, Warehouse: d.Warehouse}
}

// DailyDemand converts the corrected weighted monthly demand to a daily rate
func (d DemandStat) DailyDemand() float64 {
	return d.Demand3MoWeighted / 30
}

// CVOrZero returns the coefficient of variation, or zero when undefined
func (d DemandStat) CVOrZero() float64 {
	if d.CV == nil {
		return 0
	}
	return *d.CV
}

// PatternType classifies the shape of a seasonal profile
type PatternType string

const (
	PatternSpringSummer PatternType = "spring_summer"
	PatternFallWinter   PatternType = "fall_winter"
	PatternHoliday      PatternType = "holiday"
	PatternYearRound    PatternType = "year_round"
	PatternUnknown      PatternType = "unknown"
)

// SeasonalFactor is the multiplier for one calendar month of a SKU/warehouse
type SeasonalFactor struct {
	SKU                     string      `json:"sku" db:"sku"`
	Warehouse               string      `json:"warehouse" db:"warehouse"`
	Month                   int         `json:"month" db:"month"`
	Factor                  float64     `json:"factor" db:"factor"`
	Confidence              float64     `json:"confidence_level" db:"confidence_level"`
	SampleSize              int         `json:"sample_size" db:"sample_size"`
	PatternType             PatternType `json:"pattern_type" db:"pattern_type"`
	PatternStrength         float64     `json:"pattern_strength" db:"pattern_strength"`
	StatisticalSignificance bool        `json:"statistical_significance" db:"statistical_significance"`
	PValue                  float64     `json:"p_value" db:"p_value"`
	// LearnedMultiplier is the accuracy-driven correction folded into Factor
	LearnedMultiplier       float64     `json:"learned_multiplier" db:"learned_multiplier"`
	CalculatedAt            time.Time   `json:"calculated_at" db:"calculated_at"`
}

// SeasonalAdjustment is a learned multiplier for one calendar month of a
// SKU/warehouse. It outlives recalculation of the factors.
type SeasonalAdjustment struct {
	SKU          string    `json:"sku" db:"sku"`
	Warehouse    string    `json:"warehouse" db:"warehouse"`
	Month        int       `json:"month" db:"month"`
	Multiplier   float64   `json:"multiplier" db:"multiplier"`
	AdjustmentID *int64    `json:"adjustment_id,omitempty" db:"adjustment_id"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// SeasonalProfile is the full 12-month profile for a SKU/warehouse
type SeasonalProfile struct {
	Key         SKUKey           `json:"key"`
	Factors     []SeasonalFactor `json:"factors"`
	PatternType PatternType      `json:"pattern_type"`
	Significant bool             `json:"statistical_significance"`
}

// FactorFor returns the multiplier for calendar month m, defaulting to 1.0
func (p SeasonalProfile) FactorFor(m time.Month) float64 {
	for _, f := range p.Factors {
		if f.Month == int(m) {
			return f.Factor
		}
	}
	return 1.0
}

// MeanConfidence averages the per-month confidence levels
func (p SeasonalProfile) MeanConfidence() float64 {
	if len(p.Factors) == 0 {
		return 0
	}
	var sum float64
	for _, f := range p.Factors {
		sum += f.Confidence
	}
	return sum / float64(len(p.Factors))
}

// IsSeasonal reports whether a real seasonal pattern should be applied
func (p SeasonalProfile) IsSeasonal() bool {
	return p.Significant && p.PatternType != PatternYearRound && p.PatternType != PatternUnknown
}

// EffectiveFactor is the multiplier a forecast applies for month m: the full
// factor of a seasonal profile, otherwise only the learned correction
func (p SeasonalProfile) EffectiveFactor(m time.Month) float64 {
	if p.IsSeasonal() {
		return p.FactorFor(m)
	}
	for _, f := range p.Factors {
		if f.Month == int(m) && f.LearnedMultiplier > 0 {
			return f.LearnedMultiplier
		}
	}
	return 1.0
}

// HasLearnedFactors reports whether any month carries a learned correction
func (p SeasonalProfile) HasLearnedFactors() bool {
	for _, f := range p.Factors {
		if f.LearnedMultiplier > 0 && f.LearnedMultiplier != 1 {
			return true
		}
	}
	return false
}
