package growth

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/demandstats"
	"github.com/andresuchdata/autopo-forecast/internal/engine/seasonal"
	"gonum.org/v1/gonum/stat"
)

const (
	minTrendMonths  = 6
	newSKUMaxMonths = 12
	launchWindow    = 3

	minTrendRate = -0.5
	maxTrendRate = 1.0

	provenDemandRate  = 0.40
	maxInStockShare   = 0.60
	minSellThrough    = 0.90
	viralGrowthRate   = 0.50
	decliningRate     = -0.20
	minForecastGrowth = -0.95
)

// Input is everything the resolver looks at for one SKU/warehouse
type Input struct {
	SKU         domain.SKU
	RunOverride *float64
	// KeyOverride is the override stored for this SKU at this warehouse
	KeyOverride     *float64
	History         []demandstats.CorrectedMonth
	CategoryHistory []demandstats.CorrectedMonth
	// LaunchReceipts is the quantity received for the launch window, zero
	// when no receipts are recorded
	LaunchReceipts float64
	Profile        domain.SeasonalProfile
}

// Resolve walks the fallback chain and returns the first rate that applies
func Resolve(in Input) domain.GrowthRate {
	if in.RunOverride != nil {
		return domain.GrowthRate{Rate: *in.RunOverride, Source: domain.NewGrowthSource(domain.GrowthManual, "", false)}
	}
	if in.KeyOverride != nil {
		return domain.GrowthRate{Rate: *in.KeyOverride, Source: domain.NewGrowthSource(domain.GrowthManual, "", false)}
	}
	if in.SKU.GrowthOverride != nil {
		return domain.GrowthRate{Rate: *in.SKU.GrowthOverride, Source: domain.NewGrowthSource(domain.GrowthManual, "", false)}
	}

	isSeasonal := in.Profile.IsSeasonal()
	tagged := func(base domain.GrowthBase, rate float64) domain.GrowthRate {
		return domain.GrowthRate{Rate: rate, Source: domain.NewGrowthSource(base, in.SKU.XYZClass, isSeasonal)}
	}

	months := len(in.History)
	if months >= minTrendMonths {
		if rate, ok := Trend(series(in.History, in.Profile, isSeasonal)); ok {
			return tagged(domain.GrowthSKUTrend, rate)
		}
	}

	if IsNewSKU(months) {
		if ProvenDemand(in.History, in.LaunchReceipts) {
			r := tagged(domain.GrowthNewSKU, provenDemandRate)
			r.ProvenDemand = true
			return r
		}
		return tagged(domain.GrowthNewSKU, NewSKUCurve(months))
	}

	if len(in.CategoryHistory) >= minTrendMonths {
		if rate, ok := Trend(series(in.CategoryHistory, in.Profile, isSeasonal)); ok {
			return tagged(domain.GrowthCategoryTrend, rate)
		}
	}

	switch in.SKU.GrowthStatus {
	case domain.GrowthStatusViral:
		return tagged(domain.GrowthStatusFlag, viralGrowthRate)
	case domain.GrowthStatusDeclining:
		return tagged(domain.GrowthStatusFlag, decliningRate)
	}

	return domain.GrowthRate{Rate: 0, Source: domain.NewGrowthSource(domain.GrowthDefault, "", false)}
}

// Trend fits a weighted least-squares line with weights rising toward recent
// months and annualises the slope against the series mean
func Trend(values []float64) (float64, bool) {
	if len(values) < minTrendMonths {
		return 0, false
	}
	avg := stat.Mean(values, nil)
	if avg <= 0 {
		return 0, false
	}

	xs := make([]float64, len(values))
	ws := make([]float64, len(values))
	for i := range values {
		xs[i] = float64(i)
		ws[i] = float64(i + 1)
	}
	_, slope := stat.LinearRegression(xs, values, ws, false)
	if math.IsNaN(slope) {
		return 0, false
	}

	rate := slope * 12 / avg
	return math.Max(minTrendRate, math.Min(maxTrendRate, rate)), true
}

// NewSKUCurve is the conservative growth assumption by months of history
func NewSKUCurve(months int) float64 {
	switch {
	case months < 3:
		return 0.20
	case months < 6:
		return 0.15
	default:
		return 0.10
	}
}

// ProvenDemand reports whether the SKU sold out shortly after launch: it
// stocked out in its first months, was in stock for at most 60% of them and
// sold at least 90% of what was received. Without recorded receipts the
// sell-through cannot be established and the answer is false.
func ProvenDemand(history []demandstats.CorrectedMonth, receipts float64) bool {
	n := launchWindow
	if len(history) < n {
		n = len(history)
	}
	var days, stockout int
	var sold float64
	for _, m := range history[:n] {
		days += domain.DaysInMonth(m.Month)
		stockout += m.StockoutDays
		sold += m.Raw
	}
	if days == 0 || stockout == 0 || sold <= 0 || receipts <= 0 {
		return false
	}
	inStock := float64(days-stockout) / float64(days)
	return inStock <= maxInStockShare && sold/receipts >= minSellThrough
}

// IsNewSKU reports whether a history of this many months is still on the
// new SKU curve
func IsNewSKU(months int) bool {
	return months >= 1 && months < newSKUMaxMonths
}

// LaunchWindow returns the period whose receipts count toward sell-through:
// from one month before the first sales month to the end of the launch months
func LaunchWindow(history []demandstats.CorrectedMonth) (from, to time.Time, ok bool) {
	if len(history) == 0 {
		return from, to, false
	}
	n := launchWindow
	if len(history) < n {
		n = len(history)
	}
	first := domain.MonthStart(history[0].Month)
	return first.AddDate(0, -1, 0), domain.MonthStart(history[n-1].Month).AddDate(0, 1, 0), true
}

// ClampForForecast keeps compounding well defined for steep declines
func ClampForForecast(rate float64) float64 {
	return math.Max(minForecastGrowth, rate)
}

func series(history []demandstats.CorrectedMonth, profile domain.SeasonalProfile, deseasonalize bool) []float64 {
	if deseasonalize {
		return seasonal.Deseasonalize(history, profile)
	}
	return demandstats.CorrectedValues(history)
}
