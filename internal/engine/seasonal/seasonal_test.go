package seasonal

import (
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/demandstats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

var (
	key = domain.SKUKey{SKU: "SKU-1", Warehouse: "burnaby"}
	now = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
)

func series(startYear int, values []float64) []demandstats.CorrectedMonth {
	start := time.Date(startYear, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]demandstats.CorrectedMonth, len(values))
	for i, v := range values {
		out[i] = demandstats.CorrectedMonth{Month: start.AddDate(0, i, 0), Raw: v, Corrected: v}
	}
	return out
}

func holidayYears(scales ...float64) []float64 {
	var out []float64
	for _, s := range scales {
		for m := 1; m <= 12; m++ {
			v := 100.0
			switch m {
			case 11:
				v = 250
			case 12:
				v = 300
			}
			out = append(out, v*s)
		}
	}
	return out
}

func TestCalculate_ShortHistoryDefaults(t *testing.T) {
	profile := Calculate(key, series(2024, []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110}), now)

	assert.Equal(t, domain.PatternUnknown, profile.PatternType)
	assert.False(t, profile.Significant)
	require.Len(t, profile.Factors, 12)
	for _, f := range profile.Factors {
		assert.Equal(t, 1.0, f.Factor)
		assert.Equal(t, 0.0, f.Confidence)
	}
}

func TestCalculate_HolidayPattern(t *testing.T) {
	profile := Calculate(key, series(2022, holidayYears(1.0, 1.1, 1.2)), now)

	assert.Equal(t, domain.PatternHoliday, profile.PatternType)
	assert.True(t, profile.Significant)
	assert.True(t, profile.IsSeasonal())

	factors := make([]float64, 12)
	for i, f := range profile.Factors {
		factors[i] = f.Factor
		assert.Equal(t, 3, f.SampleSize)
		assert.InDelta(t, 1.0, f.Confidence, 1e-9)
	}
	assert.InDelta(t, 1.0, stat.Mean(factors, nil), 1e-9)
	assert.Greater(t, profile.FactorFor(time.December), profile.FactorFor(time.November))
	assert.Less(t, profile.FactorFor(time.March), 1.0)
}

func TestCalculate_SingleYearIsUntestable(t *testing.T) {
	profile := Calculate(key, series(2024, holidayYears(1.0)), now)

	assert.False(t, profile.Significant)
	assert.Equal(t, domain.PatternHoliday, profile.PatternType)
	for _, f := range profile.Factors {
		assert.Equal(t, 1.0, f.PValue)
		assert.InDelta(t, 0.5/3, f.Confidence, 1e-9)
	}
}

func TestCalculate_FlatDemandIsYearRound(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = 100
		if i%2 == 0 {
			values[i] = 104
		}
	}
	profile := Calculate(key, series(2023, values), now)

	assert.Equal(t, domain.PatternYearRound, profile.PatternType)
	assert.False(t, profile.IsSeasonal())
}

func TestAnovaF(t *testing.T) {
	got := AnovaF([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.True(t, got.Testable)
	assert.InDelta(t, 13.5, got.F, 1e-9)
	assert.Greater(t, got.PValue, 0.01)
	assert.Less(t, got.PValue, 0.05)

	untestable := AnovaF([][]float64{{1}, {2}, {3}})
	assert.False(t, untestable.Testable)
	assert.Equal(t, 1.0, untestable.PValue)
}

func TestClassifyPattern(t *testing.T) {
	flat := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}

	summer := append([]float64(nil), flat...)
	summer[5], summer[6], summer[7] = 1.4, 1.5, 1.3
	assert.Equal(t, domain.PatternSpringSummer, ClassifyPattern(summer, 0.2))

	winter := append([]float64(nil), flat...)
	winter[0], winter[1], winter[9] = 1.4, 1.5, 1.3
	assert.Equal(t, domain.PatternFallWinter, ClassifyPattern(winter, 0.2))

	assert.Equal(t, domain.PatternYearRound, ClassifyPattern(summer, 0.05))
	assert.Equal(t, domain.PatternYearRound, ClassifyPattern(flat, 0.3))
}

func TestNormalize(t *testing.T) {
	out := Normalize([]float64{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2})
	for _, v := range out {
		assert.InDelta(t, 1.0, v, 1e-12)
	}
}

func TestApplyLearned(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	base := Calculate(domain.SKUKey{SKU: "S", Warehouse: "kentucky"}, nil, now)

	unchanged := ApplyLearned(base, nil)
	assert.Equal(t, base.Factors, unchanged.Factors)

	march := ApplyLearned(base, []domain.SeasonalAdjustment{{Month: 3, Multiplier: 0.8}})
	require.Len(t, march.Factors, 12)
	assert.InDelta(t, 0.8, march.EffectiveFactor(time.March), 1e-12)
	assert.InDelta(t, 1.0, march.EffectiveFactor(time.January), 1e-12)

	var sum float64
	for _, f := range march.Factors {
		sum += f.Factor
	}
	assert.InDelta(t, 12, sum, 1e-9)
	assert.Less(t, march.FactorFor(time.March), march.FactorFor(time.January))
	// the input profile is not modified
	assert.Equal(t, 1.0, base.Factors[2].Factor)
}
