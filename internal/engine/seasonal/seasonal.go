// Package seasonal fits one multiplicative factor per calendar month from
// stockout-corrected history and tests whether the pattern is real.
package seasonal

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/demandstats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	minHistoryMonths = 12
	maxYears         = 3
	minMonthsPerYear = 3

	peakThreshold     = 1.15
	minStrength       = 0.1
	significanceLevel = 0.05
)

// FTest is the outcome of the one-way ANOVA across month buckets
type FTest struct {
	F        float64
	PValue   float64
	Testable bool
}

// Calculate builds the 12-month seasonal profile of a key
func Calculate(key domain.SKUKey, months []demandstats.CorrectedMonth, now time.Time) domain.SeasonalProfile {
	if len(months) < minHistoryMonths {
		return defaultProfile(key, now)
	}

	ratios := monthRatios(recentYears(months))

	raw := make([]float64, 12)
	for m := 0; m < 12; m++ {
		raw[m] = 1.0
		if len(ratios[m]) > 0 {
			raw[m] = stat.Mean(ratios[m], nil)
		}
	}
	factors := Normalize(raw)
	strength := stat.PopStdDev(factors, nil)

	test := AnovaF(ratios)
	significant := test.Testable && test.PValue < significanceLevel
	pattern := ClassifyPattern(factors, strength)

	profile := domain.SeasonalProfile{
		Key:         key,
		PatternType: pattern,
		Significant: significant,
		Factors:     make([]domain.SeasonalFactor, 12),
	}
	for m := 0; m < 12; m++ {
		years := len(ratios[m])
		confidence := 0.5 * math.Min(float64(years)/maxYears, 1)
		if test.Testable {
			confidence += 0.5 * (1 - test.PValue)
		}
		profile.Factors[m] = domain.SeasonalFactor{
			SKU:                     key.SKU,
			Warehouse:               key.Warehouse,
			Month:                   m + 1,
			Factor:                  factors[m],
			Confidence:              math.Max(0, math.Min(1, confidence)),
			SampleSize:              years,
			PatternType:             pattern,
			PatternStrength:         strength,
			StatisticalSignificance: significant,
			PValue:                  test.PValue,
			LearnedMultiplier:       1,
			CalculatedAt:            now,
		}
	}
	return profile
}

// ApplyLearned folds learned month multipliers into a calculated profile and
// renormalises the factors to a mean of one
func ApplyLearned(profile domain.SeasonalProfile, adjustments []domain.SeasonalAdjustment) domain.SeasonalProfile {
	learned := make(map[int]float64, len(adjustments))
	for _, a := range adjustments {
		if a.Multiplier > 0 {
			learned[a.Month] = a.Multiplier
		}
	}

	out := profile
	out.Factors = append([]domain.SeasonalFactor(nil), profile.Factors...)
	if len(learned) == 0 {
		return out
	}

	raw := make([]float64, len(out.Factors))
	for i, f := range out.Factors {
		m, ok := learned[f.Month]
		if !ok {
			m = 1
		}
		out.Factors[i].LearnedMultiplier = m
		raw[i] = f.Factor * m
	}
	for i, v := range Normalize(raw) {
		out.Factors[i].Factor = v
	}
	return out
}

// Normalize scales factors so their mean is exactly one
func Normalize(raw []float64) []float64 {
	out := make([]float64, len(raw))
	m := stat.Mean(raw, nil)
	for i, v := range raw {
		if m <= 0 {
			out[i] = 1
			continue
		}
		out[i] = v / m
	}
	return out
}

// AnovaF runs a one-way ANOVA over the ratio buckets
func AnovaF(groups [][]float64) FTest {
	var all []float64
	k := 0
	for _, g := range groups {
		if len(g) > 0 {
			k++
			all = append(all, g...)
		}
	}
	n := len(all)
	if k < 2 || n-k <= 0 {
		return FTest{PValue: 1}
	}

	grand := stat.Mean(all, nil)
	var ssb, ssw float64
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		gm := stat.Mean(g, nil)
		ssb += float64(len(g)) * (gm - grand) * (gm - grand)
		for _, v := range g {
			ssw += (v - gm) * (v - gm)
		}
	}

	d1, d2 := float64(k-1), float64(n-k)
	if ssw == 0 {
		if ssb == 0 {
			return FTest{PValue: 1, Testable: true}
		}
		return FTest{F: math.Inf(1), PValue: 0, Testable: true}
	}

	f := (ssb / d1) / (ssw / d2)
	p := distuv.F{D1: d1, D2: d2}.Survival(f)
	return FTest{F: f, PValue: p, Testable: true}
}

// ClassifyPattern bins the peak months of a normalised profile
func ClassifyPattern(factors []float64, strength float64) domain.PatternType {
	var peaks []int
	for i, f := range factors {
		if f > peakThreshold {
			peaks = append(peaks, i+1)
		}
	}
	if len(peaks) == 0 || strength < minStrength {
		return domain.PatternYearRound
	}

	holiday, springSummer := 0, 0
	for _, m := range peaks {
		if m == 11 || m == 12 {
			holiday++
		}
		if m >= 3 && m <= 8 {
			springSummer++
		}
	}
	switch {
	case holiday == len(peaks):
		return domain.PatternHoliday
	case 2*springSummer >= len(peaks):
		return domain.PatternSpringSummer
	default:
		return domain.PatternFallWinter
	}
}

// Deseasonalize divides each month by its factor, leaving months with a zero factor as is
func Deseasonalize(months []demandstats.CorrectedMonth, profile domain.SeasonalProfile) []float64 {
	out := make([]float64, len(months))
	for i, m := range months {
		f := profile.FactorFor(m.Month.Month())
		if f <= 0 {
			out[i] = m.Corrected
			continue
		}
		out[i] = m.Corrected / f
	}
	return out
}

func defaultProfile(key domain.SKUKey, now time.Time) domain.SeasonalProfile {
	profile := domain.SeasonalProfile{
		Key:         key,
		PatternType: domain.PatternUnknown,
		Factors:     make([]domain.SeasonalFactor, 12),
	}
	for m := 0; m < 12; m++ {
		profile.Factors[m] = domain.SeasonalFactor{
			SKU:               key.SKU,
			Warehouse:         key.Warehouse,
			Month:             m + 1,
			Factor:            1.0,
			PatternType:       domain.PatternUnknown,
			PValue:            1,
			LearnedMultiplier: 1,
			CalculatedAt:      now,
		}
	}
	return profile
}

func recentYears(months []demandstats.CorrectedMonth) []demandstats.CorrectedMonth {
	anchor := months[len(months)-1].Month
	start := anchor.AddDate(0, -(maxYears*12 - 1), 0)
	for i, m := range months {
		if !m.Month.Before(start) {
			return months[i:]
		}
	}
	return nil
}

// monthRatios returns, per calendar month, each year's value over that year's mean
func monthRatios(months []demandstats.CorrectedMonth) [][]float64 {
	byYear := make(map[int][]demandstats.CorrectedMonth)
	var years []int
	for _, m := range months {
		y := m.Month.Year()
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], m)
	}

	ratios := make([][]float64, 12)
	for _, y := range years {
		rows := byYear[y]
		if len(rows) < minMonthsPerYear {
			continue
		}
		yearMean := stat.Mean(demandstats.CorrectedValues(rows), nil)
		if yearMean <= 0 {
			continue
		}
		for _, r := range rows {
			idx := int(r.Month.Month()) - 1
			ratios[idx] = append(ratios[idx], r.Corrected/yearMean)
		}
	}
	return ratios
}
