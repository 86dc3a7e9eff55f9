package demandstats

import (
	"math"
	"sort"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"gonum.org/v1/gonum/stat"
)

const (
	// availabilityFloor bounds the in-stock share used as divisor, capping
	// the uplift at 1/0.3
	availabilityFloor = 0.3

	lowCVThreshold  = 0.25
	highCVThreshold = 0.75

	volatilityWindow = 12
	qualityWindow    = 12
)

var (
	weights3Mo = []float64{0.5, 0.3, 0.2}
	weights6Mo = []float64{0.30, 0.25, 0.20, 0.12, 0.08, 0.05}
)

// CorrectedMonth is a sales month with its stockout-corrected demand
type CorrectedMonth struct {
	Month        time.Time
	Raw          float64
	Corrected    float64
	StockoutDays int
	Affected     bool
	FullStockout bool
}

// Correct inflates observed sales by the share of the month the SKU was in stock
func Correct(row domain.MonthlySales) CorrectedMonth {
	days := domain.DaysInMonth(row.Month)
	stockout := row.StockoutDays
	if stockout < 0 {
		stockout = 0
	}
	if stockout > days {
		stockout = days
	}

	out := CorrectedMonth{
		Month:        domain.MonthStart(row.Month),
		Raw:          row.UnitsSold,
		Corrected:    row.UnitsSold,
		StockoutDays: stockout,
		Affected:     stockout > 0,
	}
	if stockout == 0 {
		return out
	}

	if stockout == days && row.UnitsSold == 0 {
		out.Corrected = 0
		out.FullStockout = true
		return out
	}

	availability := float64(days-stockout) / float64(days)
	out.Corrected = row.UnitsSold / math.Max(availability, availabilityFloor)
	return out
}

// CorrectHistory corrects every month and returns them ordered oldest first
func CorrectHistory(rows []domain.MonthlySales) []CorrectedMonth {
	out := make([]CorrectedMonth, 0, len(rows))
	for _, row := range rows {
		out = append(out, Correct(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// CorrectedValues extracts the corrected quantities in order
func CorrectedValues(months []CorrectedMonth) []float64 {
	out := make([]float64, len(months))
	for i, m := range months {
		out[i] = m.Corrected
	}
	return out
}

// Calculate derives the demand statistics of a key from its raw sales history
func Calculate(key domain.SKUKey, rows []domain.MonthlySales, now time.Time) domain.DemandStat {
	months := CorrectHistory(rows)
	values := CorrectedValues(months)

	ds := domain.DemandStat{
		SKU:               key.SKU,
		Warehouse:         key.Warehouse,
		Demand3MoWeighted: WeightedAverage(values, weights3Mo),
		Demand6MoWeighted: WeightedAverage(values, weights6Mo),
		Demand3MoSimple:   SimpleAverage(values, 3),
		Demand6MoSimple:   SimpleAverage(values, 6),
		SampleSize:        len(months),
		IsValid:           true,
		CalculatedAt:      now,
	}

	recent := newest(values, volatilityWindow)
	avg := mean(recent)
	ds.StdDev = SampleStdDev(recent)
	if avg > 0 {
		cv := ds.StdDev / avg
		ds.CV = &cv
		ds.VolatilityClass = ClassifyCV(cv)
	} else {
		ds.VolatilityClass = domain.VolatilityUnknown
	}

	ds.StockoutMonths, ds.DataQuality = dataQuality(months)
	return ds
}

// WeightedAverage applies weights newest first, renormalising for short histories
func WeightedAverage(values []float64, weights []float64) float64 {
	n := len(weights)
	if len(values) < n {
		n = len(values)
	}
	if n == 0 {
		return 0
	}
	var sum, wsum float64
	for i := 0; i < n; i++ {
		v := values[len(values)-1-i]
		sum += v * weights[i]
		wsum += weights[i]
	}
	return sum / wsum
}

// SimpleAverage is the plain mean of the newest window values
func SimpleAverage(values []float64, window int) float64 {
	return mean(newest(values, window))
}

// SampleStdDev is the n-1 standard deviation; fewer than two values give zero
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// ClassifyCV buckets a coefficient of variation
func ClassifyCV(cv float64) domain.VolatilityClass {
	switch {
	case cv < lowCVThreshold:
		return domain.VolatilityLow
	case cv <= highCVThreshold:
		return domain.VolatilityMedium
	default:
		return domain.VolatilityHigh
	}
}

// dataQuality scores completeness of the trailing year ending at the newest month
func dataQuality(months []CorrectedMonth) (stockoutMonths int, score float64) {
	if len(months) == 0 {
		return 0, 0
	}
	anchor := months[len(months)-1].Month
	start := anchor.AddDate(0, -(qualityWindow - 1), 0)

	var window []CorrectedMonth
	for _, m := range months {
		if !m.Month.Before(start) {
			window = append(window, m)
		}
	}

	missing := qualityWindow - len(window)
	if missing < 0 {
		missing = 0
	}

	zeroRuns, run := 0, 0
	for i, m := range window {
		contiguous := i == 0 || window[i-1].Month.AddDate(0, 1, 0).Equal(m.Month)
		if !contiguous {
			run = 0
		}
		if m.Corrected == 0 {
			run++
			if run == 3 {
				zeroRuns++
			}
		} else {
			run = 0
		}
		if m.Affected {
			stockoutMonths++
		}
	}

	score = 1 - 0.6*float64(missing)/qualityWindow
	score -= math.Min(0.1*float64(zeroRuns), 0.3)
	score -= 0.1 * float64(stockoutMonths) / float64(len(window))
	return stockoutMonths, clamp01(score)
}

func newest(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
