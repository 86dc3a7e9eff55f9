package forecast

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/growth"
	"github.com/shopspring/decimal"
)

const (
	MethodSeasonalGrowth   = "weighted_avg_seasonal_growth"
	MethodGrowth           = "weighted_avg_growth"
	MethodInsufficientData = "insufficient_data"
)

var forecastMonths = decimal.NewFromInt(domain.ForecastMonths)

// Input carries the resolved statistics for one SKU/warehouse
type Input struct {
	RunID           int64
	Key             domain.SKUKey
	Start           time.Time
	Stat            domain.DemandStat
	Profile         domain.SeasonalProfile
	Growth          domain.GrowthRate
	AvgSellingPrice decimal.Decimal
	Now             time.Time
}

// Generate builds the 12-month forecast detail row
func Generate(in Input) domain.ForecastDetail {
	detail := domain.ForecastDetail{
		RunID:        in.RunID,
		SKU:          in.Key.SKU,
		Warehouse:    in.Key.Warehouse,
		GrowthRate:   in.Growth.Rate,
		GrowthSource: in.Growth.Source,
		CreatedAt:    in.Now,
	}

	if in.Stat.SampleSize == 0 {
		detail.MonthlyQty = make(domain.QtyCells, domain.ForecastMonths)
		detail.MonthlyRevenue = make(domain.RevenueCells, domain.ForecastMonths)
		for i := range detail.MonthlyRevenue {
			detail.MonthlyRevenue[i] = decimal.Zero
		}
		detail.SeasonalPattern = domain.PatternUnknown
		detail.Method = MethodInsufficientData
		detail.TotalRevenue = decimal.Zero
		detail.AvgMonthlyRev = decimal.Zero
		return detail
	}

	seasonal := in.Profile.IsSeasonal()
	g := growth.ClampForForecast(in.Growth.Rate)
	base := in.Stat.Demand3MoWeighted
	start := domain.MonthStart(in.Start)

	qty := make(domain.QtyCells, domain.ForecastMonths)
	for i := 1; i <= domain.ForecastMonths; i++ {
		factor := in.Profile.EffectiveFactor(start.AddDate(0, i-1, 0).Month())
		qty[i-1] = Round2(base * factor * math.Pow(1+g, float64(i-1)/12))
	}

	detail.MonthlyQty = qty
	detail.BaseDemand = base
	detail.Confidence = Confidence(in.Stat, in.Profile)
	detail.SeasonalPattern = appliedPattern(in.Profile, seasonal)
	detail.Method = MethodGrowth
	if seasonal {
		detail.Method = MethodSeasonalGrowth
	}
	Price(&detail, in.AvgSellingPrice)
	return detail
}

// Price fills revenue cells and recomputes every derived total
func Price(detail *domain.ForecastDetail, price decimal.Decimal) {
	revenue := make(domain.RevenueCells, len(detail.MonthlyQty))
	for i, q := range detail.MonthlyQty {
		revenue[i] = decimal.NewFromFloat(q).Mul(price).Round(2)
	}
	detail.MonthlyRevenue = revenue
	Totals(detail)
}

// Totals derives totals and averages from the monthly cells
func Totals(detail *domain.ForecastDetail) {
	totalQty := decimal.Zero
	for _, q := range detail.MonthlyQty {
		totalQty = totalQty.Add(decimal.NewFromFloat(q))
	}
	detail.TotalQty = totalQty.InexactFloat64()
	detail.AvgMonthlyQty = detail.TotalQty / domain.ForecastMonths

	totalRev := decimal.Zero
	for _, r := range detail.MonthlyRevenue {
		totalRev = totalRev.Add(r)
	}
	detail.TotalRevenue = totalRev
	detail.AvgMonthlyRev = totalRev.Div(forecastMonths).Round(2)
}

// Confidence blends data quality, seasonal confidence and history length
func Confidence(stat domain.DemandStat, profile domain.SeasonalProfile) float64 {
	c := 0.5*stat.DataQuality +
		0.3*profile.MeanConfidence() +
		0.2*math.Min(float64(stat.SampleSize)/12, 1)
	return math.Max(0, math.Min(1, c))
}

// ApplyAdjustments returns the detail with manual adjustments folded into its
// cells; the newest adjustment of a month wins
func ApplyAdjustments(detail domain.ForecastDetail, adjustments []domain.ForecastAdjustment, price decimal.Decimal) domain.ForecastDetail {
	if len(adjustments) == 0 {
		return detail
	}
	out := detail
	out.MonthlyQty = append(domain.QtyCells(nil), detail.MonthlyQty...)
	for _, adj := range adjustments {
		if adj.MonthIndex < 1 || adj.MonthIndex > len(out.MonthlyQty) {
			continue
		}
		out.MonthlyQty[adj.MonthIndex-1] = Round2(adj.AdjustedQty)
	}
	Price(&out, price)
	return out
}

// Round2 rounds half away from zero to two decimals
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func appliedPattern(profile domain.SeasonalProfile, seasonal bool) domain.PatternType {
	switch {
	case seasonal:
		return profile.PatternType
	case profile.PatternType == domain.PatternUnknown || profile.PatternType == "":
		return domain.PatternUnknown
	default:
		return domain.PatternYearRound
	}
}
