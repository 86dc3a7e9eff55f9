package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	key   = domain.SKUKey{SKU: "SKU-1", Warehouse: "kentucky"}
	start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now   = time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)
)

func holidayProfile() domain.SeasonalProfile {
	factors := make([]domain.SeasonalFactor, 12)
	for i := range factors {
		factors[i] = domain.SeasonalFactor{Month: i + 1, Factor: 0.9, Confidence: 0.8}
	}
	factors[10].Factor = 1.4
	factors[11].Factor = 1.6
	return domain.SeasonalProfile{Key: key, Factors: factors, PatternType: domain.PatternHoliday, Significant: true}
}

func baseInput() Input {
	return Input{
		RunID:           1,
		Key:             key,
		Start:           start,
		Stat:            domain.DemandStat{Demand3MoWeighted: 100, DataQuality: 0.9, SampleSize: 24},
		Profile:         holidayProfile(),
		Growth:          domain.GrowthRate{Rate: 0.12, Source: domain.NewGrowthSource(domain.GrowthSKUTrend, "X", true)},
		AvgSellingPrice: decimal.RequireFromString("12.50"),
		Now:             now,
	}
}

func TestGenerate_Cells(t *testing.T) {
	detail := Generate(baseInput())

	require.Len(t, detail.MonthlyQty, 12)
	assert.Equal(t, 90.0, detail.MonthlyQty[0])
	assert.Equal(t, Round2(100*0.9*math.Pow(1.12, 1.0/12)), detail.MonthlyQty[1])
	assert.Equal(t, Round2(100*1.6*math.Pow(1.12, 11.0/12)), detail.MonthlyQty[11])
	assert.Equal(t, MethodSeasonalGrowth, detail.Method)
	assert.Equal(t, domain.PatternHoliday, detail.SeasonalPattern)
	assert.Equal(t, "sku_trend_X_seasonal", detail.GrowthSource.String())
	assert.True(t, decimal.RequireFromString("1125").Equal(detail.MonthlyRevenue[0]))
}

func TestGenerate_TotalsRoundTrip(t *testing.T) {
	detail := Generate(baseInput())

	sum := decimal.Zero
	for _, q := range detail.MonthlyQty {
		sum = sum.Add(decimal.NewFromFloat(q))
	}
	assert.Equal(t, sum.InexactFloat64(), detail.TotalQty)
	assert.Equal(t, detail.TotalQty/12, detail.AvgMonthlyQty)

	rev := decimal.Zero
	for _, r := range detail.MonthlyRevenue {
		rev = rev.Add(r)
	}
	assert.True(t, rev.Equal(detail.TotalRevenue))
}

func TestGenerate_IsDeterministic(t *testing.T) {
	a := Generate(baseInput())
	b := Generate(baseInput())
	assert.Equal(t, a, b)
}

func TestGenerate_NonSignificantProfileIsFlat(t *testing.T) {
	in := baseInput()
	in.Profile.Significant = false
	in.Growth = domain.GrowthRate{Source: domain.NewGrowthSource(domain.GrowthDefault, "", false)}

	detail := Generate(in)
	for _, q := range detail.MonthlyQty {
		assert.Equal(t, 100.0, q)
	}
	assert.Equal(t, MethodGrowth, detail.Method)
	assert.Equal(t, domain.PatternYearRound, detail.SeasonalPattern)
}

func TestGenerate_LearnedMonthOnFlatProfile(t *testing.T) {
	in := baseInput()
	in.Profile = domain.SeasonalProfile{Key: key, PatternType: domain.PatternYearRound, Factors: make([]domain.SeasonalFactor, 12)}
	for i := range in.Profile.Factors {
		in.Profile.Factors[i] = domain.SeasonalFactor{Month: i + 1, Factor: 1, LearnedMultiplier: 1}
	}
	in.Profile.Factors[2].LearnedMultiplier = 0.8
	in.Growth = domain.GrowthRate{Source: domain.NewGrowthSource(domain.GrowthDefault, "", false)}

	detail := Generate(in)
	assert.Equal(t, 100.0, detail.MonthlyQty[0])
	assert.Equal(t, 80.0, detail.MonthlyQty[2])
	assert.Equal(t, 100.0, detail.MonthlyQty[3])
	assert.Equal(t, MethodGrowth, detail.Method)
}

func TestGenerate_NoHistory(t *testing.T) {
	in := baseInput()
	in.Stat = domain.DemandStat{}

	detail := Generate(in)
	assert.Equal(t, MethodInsufficientData, detail.Method)
	assert.Equal(t, 0.0, detail.Confidence)
	assert.Equal(t, 0.0, detail.TotalQty)
	assert.Len(t, detail.MonthlyQty, 12)
}

func TestGenerate_SteepDeclineIsClamped(t *testing.T) {
	in := baseInput()
	in.Profile.Significant = false
	in.Growth.Rate = -2

	detail := Generate(in)
	assert.Equal(t, Round2(100*math.Pow(0.05, 11.0/12)), detail.MonthlyQty[11])
	assert.Equal(t, -2.0, detail.GrowthRate)
}

func TestConfidence(t *testing.T) {
	stat := domain.DemandStat{DataQuality: 0.9, SampleSize: 6}
	got := Confidence(stat, holidayProfile())
	assert.InDelta(t, 0.5*0.9+0.3*0.8+0.2*0.5, got, 1e-9)
}

func TestApplyAdjustments(t *testing.T) {
	detail := Generate(baseInput())
	price := decimal.RequireFromString("12.50")

	adjusted := ApplyAdjustments(detail, []domain.ForecastAdjustment{
		{MonthIndex: 1, AdjustedQty: 50},
		{MonthIndex: 1, AdjustedQty: 60},
		{MonthIndex: 13, AdjustedQty: 999},
	}, price)

	assert.Equal(t, 60.0, adjusted.MonthlyQty[0])
	assert.Equal(t, 90.0, detail.MonthlyQty[0])
	assert.InDelta(t, detail.TotalQty-30, adjusted.TotalQty, 1e-9)
	assert.True(t, decimal.RequireFromString("750").Equal(adjusted.MonthlyRevenue[0]))
}

func TestTransition(t *testing.T) {
	pos := 2
	run := &domain.ForecastRun{Status: domain.RunStatusPending}

	require.NoError(t, Transition(run, domain.RunStatusQueued))
	run.QueuePosition = &pos
	require.NoError(t, Transition(run, domain.RunStatusRunning))
	assert.Nil(t, run.QueuePosition)
	require.NoError(t, Transition(run, domain.RunStatusCompleted))

	err := Transition(run, domain.RunStatusRunning)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)

	assert.False(t, CanTransition(domain.RunStatusQueued, domain.RunStatusCompleted))
	assert.True(t, CanTransition(domain.RunStatusPending, domain.RunStatusCancelled))
}
