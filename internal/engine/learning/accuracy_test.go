package learning

import (
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsFromDetail(t *testing.T) {
	completed := time.Date(2024, 12, 20, 15, 4, 5, 0, time.UTC)
	run := domain.ForecastRun{ID: 9, ForecastStart: month(2025, 1), CompletedAt: &completed}
	qty := make(domain.QtyCells, 12)
	for i := range qty {
		qty[i] = float64(10 * (i + 1))
	}
	detail := domain.ForecastDetail{RunID: 9, SKU: key.SKU, Warehouse: key.Warehouse, MonthlyQty: qty, GrowthRate: 0.1}

	records := RecordsFromDetail(run, detail, domain.SKU{ABCClass: "A", XYZClass: "Y"}, domain.DemandStat{DataQuality: 0.8}, domain.SeasonalProfile{})

	require.Len(t, records, 12)
	assert.Equal(t, time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC), records[0].ForecastDate)
	assert.Equal(t, month(2025, 1), records[0].PeriodStart)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), records[0].PeriodEnd)
	assert.Equal(t, month(2025, 12), records[11].PeriodStart)
	assert.Equal(t, 120.0, records[11].PredictedDemand)
	assert.Equal(t, "A", records[3].ABCClass)
	assert.False(t, records[0].HasActual())
}

func TestApplyActual(t *testing.T) {
	rec := &domain.ForecastAccuracyRecord{PredictedDemand: 120}
	ApplyActual(rec, domain.MonthlySales{UnitsSold: 100, StockoutDays: 2}, now)

	require.True(t, rec.HasActual())
	assert.Equal(t, 20.0, *rec.AbsoluteError)
	assert.InDelta(t, 20.0, *rec.PercentageError, 1e-9)
	assert.True(t, rec.StockoutAffected)

	zero := &domain.ForecastAccuracyRecord{PredictedDemand: 5}
	ApplyActual(zero, domain.MonthlySales{UnitsSold: 0}, now)
	assert.Nil(t, zero.PercentageError)
	assert.Equal(t, 5.0, *zero.AbsoluteError)
}

func TestSummarize(t *testing.T) {
	records := []domain.ForecastAccuracyRecord{
		record(1, month(2024, 3), 110, 100, false),
		record(2, month(2024, 2), 90, 100, false),
		record(3, month(2024, 1), 50, 100, true),
		{ID: 4, PredictedDemand: 10},
	}

	s := Summarize(key, records, false)
	assert.Equal(t, 2, s.Periods)
	assert.Equal(t, 1, s.StockoutExcluded)
	assert.InDelta(t, 10, s.MAPE, 1e-9)
	assert.InDelta(t, 0, s.Bias, 1e-9)

	all := Summarize(key, records, true)
	assert.Equal(t, 3, all.Periods)
	assert.InDelta(t, 70.0/3, all.MAPE, 1e-9)
	assert.InDelta(t, -50.0/3, all.Bias, 1e-9)
}
