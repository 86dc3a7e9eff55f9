package growth

import (
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/demandstats"
	"github.com/stretchr/testify/assert"
)

func history(values []float64, stockouts map[int]int) []demandstats.CorrectedMonth {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]demandstats.CorrectedMonth, len(values))
	for i, v := range values {
		out[i] = demandstats.Correct(domain.MonthlySales{Month: start.AddDate(0, i, 0), UnitsSold: v, StockoutDays: stockouts[i]})
	}
	return out
}

func linear(n int, intercept, slope float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = intercept + slope*float64(i)
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		rate     float64
		source   string
		proven   bool
		rateFunc func(t *testing.T, rate float64)
	}{
		{
			name:   "run override wins over everything",
			in:     Input{RunOverride: ptr(0.07), SKU: domain.SKU{GrowthOverride: ptr(0.3), XYZClass: "X"}, History: history(linear(12, 100, 10), nil)},
			rate:   0.07,
			source: "manual_override",
		},
		{
			name:   "warehouse override wins over sku override",
			in:     Input{SKU: domain.SKU{GrowthOverride: ptr(0.3)}, KeyOverride: ptr(0.12), History: history(linear(12, 100, 10), nil)},
			rate:   0.12,
			source: "manual_override",
		},
		{
			name:   "sku override",
			in:     Input{SKU: domain.SKU{GrowthOverride: ptr(-0.1)}, History: history(linear(12, 100, 10), nil)},
			rate:   -0.1,
			source: "manual_override",
		},
		{
			name:   "sku trend from twelve months",
			in:     Input{SKU: domain.SKU{XYZClass: "X"}, History: history(linear(12, 100, 10), nil)},
			rate:   120.0 / 155.0,
			source: "sku_trend_X",
		},
		{
			name:   "sku trend clamped",
			in:     Input{SKU: domain.SKU{}, History: history(linear(8, 10, 50), nil)},
			rate:   1.0,
			source: "sku_trend",
		},
		{
			name:   "three months falls to new sku tier",
			in:     Input{SKU: domain.SKU{XYZClass: "Y"}, History: history([]float64{20, 25, 30}, nil)},
			rate:   0.15,
			source: "new_sku_Y",
		},
		{
			name:   "two months",
			in:     Input{SKU: domain.SKU{XYZClass: "z"}, History: history([]float64{20, 25}, nil)},
			rate:   0.20,
			source: "new_sku_Z",
		},
		{
			name:   "proven demand",
			in:     Input{SKU: domain.SKU{}, History: history([]float64{40, 35}, map[int]int{0: 20, 1: 18}), LaunchReceipts: 80},
			rate:   0.40,
			source: "new_sku",
			proven: true,
		},
		{
			name:   "stockout without receipts is not proven",
			in:     Input{SKU: domain.SKU{XYZClass: "Z"}, History: history([]float64{1, 1}, map[int]int{0: 25, 1: 25})},
			rate:   0.20,
			source: "new_sku_Z",
		},
		{
			name:   "low sell-through is not proven",
			in:     Input{SKU: domain.SKU{}, History: history([]float64{1, 1}, map[int]int{0: 25, 1: 25}), LaunchReceipts: 40},
			rate:   0.20,
			source: "new_sku",
		},
		{
			name:   "category trend for sku without history",
			in:     Input{SKU: domain.SKU{XYZClass: "Y"}, CategoryHistory: history(linear(12, 100, 10), nil)},
			rate:   120.0 / 155.0,
			source: "category_trend_Y",
		},
		{
			name:   "viral flag",
			in:     Input{SKU: domain.SKU{GrowthStatus: domain.GrowthStatusViral, XYZClass: "Z"}},
			rate:   0.5,
			source: "growth_status_Z",
		},
		{
			name:   "declining flag",
			in:     Input{SKU: domain.SKU{GrowthStatus: domain.GrowthStatusDeclining}},
			rate:   -0.2,
			source: "growth_status",
		},
		{
			name:   "default",
			in:     Input{SKU: domain.SKU{XYZClass: "X"}},
			rate:   0,
			source: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.in)
			assert.InDelta(t, tt.rate, got.Rate, 1e-9)
			assert.Equal(t, tt.source, got.Source.String())
			assert.Equal(t, tt.proven, got.ProvenDemand)
		})
	}
}

func TestResolve_SeasonalSuffix(t *testing.T) {
	factors := make([]domain.SeasonalFactor, 12)
	for i := range factors {
		factors[i] = domain.SeasonalFactor{Month: i + 1, Factor: 1}
	}
	profile := domain.SeasonalProfile{Factors: factors, PatternType: domain.PatternHoliday, Significant: true}

	got := Resolve(Input{SKU: domain.SKU{XYZClass: "Y"}, History: history(linear(12, 100, 10), nil), Profile: profile})
	assert.Equal(t, "sku_trend_Y_seasonal", got.Source.String())
	assert.InDelta(t, 120.0/155.0, got.Rate, 1e-9)
}

func TestTrend(t *testing.T) {
	_, ok := Trend([]float64{1, 2, 3})
	assert.False(t, ok)

	_, ok = Trend([]float64{0, 0, 0, 0, 0, 0})
	assert.False(t, ok)

	rate, ok := Trend(linear(6, 50, 0))
	assert.True(t, ok)
	assert.InDelta(t, 0, rate, 1e-9)

	rate, ok = Trend(linear(12, 200, -30))
	assert.True(t, ok)
	assert.Equal(t, -0.5, rate)
}

func TestLaunchWindow(t *testing.T) {
	_, _, ok := LaunchWindow(nil)
	assert.False(t, ok)

	from, to, ok := LaunchWindow(history([]float64{5, 6, 7, 8, 9}, nil))
	assert.True(t, ok)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestIsNewSKU(t *testing.T) {
	assert.False(t, IsNewSKU(0))
	assert.True(t, IsNewSKU(1))
	assert.True(t, IsNewSKU(11))
	assert.False(t, IsNewSKU(12))
}

func TestClampForForecast(t *testing.T) {
	assert.Equal(t, -0.95, ClampForForecast(-3))
	assert.Equal(t, 0.2, ClampForForecast(0.2))
}
