package learning

import (
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

const (
	window     = 6
	minRecords = 3

	growthConsistency     = 0.8
	growthBiasThreshold   = 0.10
	seasonalBiasThreshold = 0.20
	minSeasonalRecords    = 2
	seasonalHistory       = 36

	volatilityMAPE   = 0.5
	methodSwitchMAPE = 0.8

	minCategorySKUs = 3

	// DefaultAutoApplyThreshold is the confidence above which adjustments apply themselves
	DefaultAutoApplyThreshold = 0.8
)

// Input is the accuracy history and current parameters of one SKU/warehouse
type Input struct {
	Key             domain.SKUKey
	Records         []domain.ForecastAccuracyRecord
	GrowthRate      float64
	SeasonalFactors map[int]float64
	DataQuality     float64
	VolatilityClass domain.VolatilityClass
}

type adjustmentFactory func(t domain.AdjustmentType, orig, adjusted, consistency, improvement float64, reason string, sourceIDs []int64) domain.LearningAdjustment

type sample struct {
	id   int64
	bias float64
}

// Analyze scans the newest usable records for systematic bias and proposes adjustments
func Analyze(in Input, now time.Time) []domain.LearningAdjustment {
	usable := usableRecords(in.Records)
	recent := usable
	if len(recent) > window {
		recent = recent[:window]
	}
	if len(recent) < minRecords {
		return nil
	}

	samples := make([]sample, len(recent))
	for i, r := range recent {
		samples[i] = sample{id: r.ID, bias: bias(r)}
	}
	stats := describe(samples)

	var out []domain.LearningAdjustment
	var newAdj adjustmentFactory = func(t domain.AdjustmentType, orig, adjusted, consistency, improvement float64, reason string, sourceIDs []int64) domain.LearningAdjustment {
		return domain.LearningAdjustment{
			SKU:                     in.Key.SKU,
			Warehouse:               in.Key.Warehouse,
			Type:                    t,
			OriginalValue:           orig,
			AdjustedValue:           adjusted,
			Magnitude:               math.Abs(adjusted - orig),
			Confidence:              Confidence(consistency, len(sourceIDs), in.DataQuality),
			Reason:                  reason,
			ExpectedMAPEImprovement: improvement,
			SourceRecordIDs:         sourceIDs,
			CreatedAt:               now,
		}
	}

	if stats.consistency >= growthConsistency && math.Abs(stats.meanBias) >= growthBiasThreshold {
		adjusted := (1+in.GrowthRate)/(1+stats.meanBias) - 1
		direction := "over"
		if stats.meanBias < 0 {
			direction = "under"
		}
		reason := fmt.Sprintf("%s-forecast in %.0f%% of the last %d periods, mean bias %+.1f%%",
			direction, stats.consistency*100, len(samples), stats.meanBias*100)
		out = append(out, newAdj(domain.AdjustmentGrowthRate, in.GrowthRate, adjusted,
			stats.consistency, expectedImprovement(samples, stats.meanBias), reason, ids(samples)))
	}

	out = append(out, seasonalAdjustments(in, usable, newAdj)...)

	mixed := stats.positive > 0 && stats.negative > 0
	if stats.mape > volatilityMAPE && mixed {
		adjusted := 1 + math.Min(stats.mape-volatilityMAPE, 1)
		reason := fmt.Sprintf("MAPE %.0f%% with errors in both directions; widen safety buffer", stats.mape*100)
		out = append(out, newAdj(domain.AdjustmentVolatility, 1, adjusted, stats.consistency, 0, reason, ids(samples)))
	}

	if stats.mape > methodSwitchMAPE && in.VolatilityClass == domain.VolatilityHigh {
		reason := fmt.Sprintf("MAPE %.0f%% on a high-volatility SKU; base demand on the 6-month weighted average", stats.mape*100)
		out = append(out, newAdj(domain.AdjustmentMethodSwitch, 3, 6, stats.consistency, 0, reason, ids(samples)))
	}

	return out
}

// CategoryDefaults proposes a category-wide growth default when enough SKUs of
// the category drift the same way
func CategoryDefaults(category, warehouse string, growthAdjustments []domain.LearningAdjustment, quality float64, now time.Time) *domain.LearningAdjustment {
	if len(growthAdjustments) < minCategorySKUs {
		return nil
	}
	var up, down int
	var orig, adjusted float64
	var sourceIDs []int64
	for _, a := range growthAdjustments {
		if a.AdjustedValue > a.OriginalValue {
			up++
		} else {
			down++
		}
		orig += a.OriginalValue
		adjusted += a.AdjustedValue
		sourceIDs = append(sourceIDs, a.SourceRecordIDs...)
	}
	n := float64(len(growthAdjustments))
	consistency := math.Max(float64(up), float64(down)) / n
	if consistency < growthConsistency {
		return nil
	}
	orig /= n
	adjusted /= n
	return &domain.LearningAdjustment{
		Warehouse:       warehouse,
		Category:        category,
		Type:            domain.AdjustmentCategoryDefault,
		OriginalValue:   orig,
		AdjustedValue:   adjusted,
		Magnitude:       math.Abs(adjusted - orig),
		Confidence:      Confidence(consistency, len(growthAdjustments), quality),
		Reason:          fmt.Sprintf("%d SKUs in %s share a growth bias", len(growthAdjustments), category),
		SourceRecordIDs: sourceIDs,
		CreatedAt:       now,
	}
}

// Confidence blends error consistency, sample count and data quality
func Confidence(consistency float64, samples int, quality float64) float64 {
	c := 0.5*consistency + 0.3*math.Min(float64(samples)/window, 1) + 0.2*quality
	return math.Max(0, math.Min(1, c))
}

// ShouldAutoApply reports whether an adjustment applies without review
func ShouldAutoApply(adj domain.LearningAdjustment, enabled bool, threshold float64) bool {
	return enabled && adj.Type.AutoApplicable() && adj.Confidence > threshold
}

func seasonalAdjustments(in Input, usable []domain.ForecastAccuracyRecord, newAdj adjustmentFactory) []domain.LearningAdjustment {
	if len(usable) > seasonalHistory {
		usable = usable[:seasonalHistory]
	}
	byMonth := make(map[int][]sample)
	for _, r := range usable {
		m := int(r.PeriodStart.Month())
		byMonth[m] = append(byMonth[m], sample{id: r.ID, bias: bias(r)})
	}

	var out []domain.LearningAdjustment
	for m := 1; m <= 12; m++ {
		samples := byMonth[m]
		if len(samples) < minSeasonalRecords {
			continue
		}
		stats := describe(samples)
		if stats.consistency < 1 || !allBeyond(samples, seasonalBiasThreshold) {
			continue
		}
		orig := 1.0
		if f, ok := in.SeasonalFactors[m]; ok {
			orig = f
		}
		adjusted := orig / (1 + stats.meanBias)
		reason := fmt.Sprintf("%s forecasts off by %+.1f%% on average across %d years",
			time.Month(m), stats.meanBias*100, len(samples))
		adj := newAdj(domain.AdjustmentSeasonalFactor, orig, adjusted, stats.consistency,
			expectedImprovement(samples, stats.meanBias), reason, ids(samples))
		month := m
		adj.Month = &month
		out = append(out, adj)
	}
	return out
}

type description struct {
	meanBias    float64
	mape        float64
	positive    int
	negative    int
	consistency float64
}

func describe(samples []sample) description {
	var d description
	for _, s := range samples {
		d.meanBias += s.bias
		d.mape += math.Abs(s.bias)
		switch {
		case s.bias > 0:
			d.positive++
		case s.bias < 0:
			d.negative++
		}
	}
	n := float64(len(samples))
	d.meanBias /= n
	d.mape /= n
	d.consistency = math.Max(float64(d.positive), float64(d.negative)) / n
	return d
}

// expectedImprovement is the MAPE reduction, in percentage points, from
// scaling the forecasts by 1/(1+meanBias)
func expectedImprovement(samples []sample, meanBias float64) float64 {
	var before, after float64
	for _, s := range samples {
		before += math.Abs(s.bias)
		after += math.Abs((1+s.bias)/(1+meanBias) - 1)
	}
	n := float64(len(samples))
	return (before - after) / n * 100
}

func allBeyond(samples []sample, threshold float64) bool {
	for _, s := range samples {
		if math.Abs(s.bias) < threshold {
			return false
		}
	}
	return true
}

func usableRecords(records []domain.ForecastAccuracyRecord) []domain.ForecastAccuracyRecord {
	var out []domain.ForecastAccuracyRecord
	for _, r := range records {
		if r.HasActual() && !r.StockoutAffected && *r.ActualDemand > 0 {
			out = append(out, r)
		}
	}
	return out
}

func bias(r domain.ForecastAccuracyRecord) float64 {
	return (r.PredictedDemand - *r.ActualDemand) / *r.ActualDemand
}

func ids(samples []sample) []int64 {
	out := make([]int64, len(samples))
	for i, s := range samples {
		out[i] = s.id
	}
	return out
}
