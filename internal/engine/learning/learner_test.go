package learning

import (
	"testing"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	key = domain.SKUKey{SKU: "SKU-1", Warehouse: "kentucky"}
	now = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
)

func record(id int64, period time.Time, predicted, actual float64, stockout bool) domain.ForecastAccuracyRecord {
	a := actual
	return domain.ForecastAccuracyRecord{
		ID:               id,
		SKU:              key.SKU,
		Warehouse:        key.Warehouse,
		PeriodStart:      period,
		PredictedDemand:  predicted,
		ActualDemand:     &a,
		StockoutAffected: stockout,
	}
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestAnalyze_ConsistentOverForecastAdjustsGrowth(t *testing.T) {
	var records []domain.ForecastAccuracyRecord
	for i := 0; i < 6; i++ {
		records = append(records, record(int64(i+1), month(2024, time.December).AddDate(0, -i, 0), 120, 100, false))
	}
	// stockout periods never count toward learning
	records = append(records, record(99, month(2024, time.June), 500, 100, true))

	adjs := Analyze(Input{Key: key, Records: records, GrowthRate: 0.1, DataQuality: 0.75}, now)

	require.Len(t, adjs, 1)
	adj := adjs[0]
	assert.Equal(t, domain.AdjustmentGrowthRate, adj.Type)
	assert.InDelta(t, 1.1/1.2-1, adj.AdjustedValue, 1e-9)
	assert.InDelta(t, 0.1, adj.OriginalValue, 1e-9)
	assert.InDelta(t, 0.95, adj.Confidence, 1e-9)
	assert.InDelta(t, 20, adj.ExpectedMAPEImprovement, 1e-9)
	assert.Equal(t, domain.Int64List{1, 2, 3, 4, 5, 6}, adj.SourceRecordIDs)
	assert.True(t, ShouldAutoApply(adj, true, DefaultAutoApplyThreshold))
	assert.False(t, ShouldAutoApply(adj, false, DefaultAutoApplyThreshold))
}

func TestAnalyze_TooFewRecords(t *testing.T) {
	records := []domain.ForecastAccuracyRecord{
		record(1, month(2024, 12), 150, 100, false),
		record(2, month(2024, 11), 150, 100, false),
		record(3, month(2024, 10), 150, 0, false),
	}
	assert.Empty(t, Analyze(Input{Key: key, Records: records}, now))
}

func TestAnalyze_SeasonalMonth(t *testing.T) {
	records := []domain.ForecastAccuracyRecord{
		record(1, month(2023, 12), 130, 100, false),
		record(2, month(2023, 11), 98, 100, false),
		record(3, month(2023, 10), 101, 100, false),
		record(4, month(2023, 9), 99, 100, false),
		record(5, month(2023, 8), 102, 100, false),
		record(6, month(2023, 7), 99, 100, false),
		record(7, month(2022, 12), 130, 100, false),
	}

	adjs := Analyze(Input{Key: key, Records: records, SeasonalFactors: map[int]float64{12: 1.5}, DataQuality: 0.5}, now)

	require.Len(t, adjs, 1)
	adj := adjs[0]
	assert.Equal(t, domain.AdjustmentSeasonalFactor, adj.Type)
	require.NotNil(t, adj.Month)
	assert.Equal(t, 12, *adj.Month)
	assert.InDelta(t, 1.5/1.3, adj.AdjustedValue, 1e-9)
	assert.InDelta(t, 0.7, adj.Confidence, 1e-9)
	assert.False(t, ShouldAutoApply(adj, true, DefaultAutoApplyThreshold))
}

func TestAnalyze_MixedLargeErrors(t *testing.T) {
	records := []domain.ForecastAccuracyRecord{
		record(1, month(2024, 12), 190, 100, false),
		record(2, month(2024, 11), 10, 100, false),
		record(3, month(2024, 10), 200, 100, false),
		record(4, month(2024, 9), 5, 100, false),
	}

	adjs := Analyze(Input{Key: key, Records: records, VolatilityClass: domain.VolatilityHigh}, now)

	types := make([]domain.AdjustmentType, 0, len(adjs))
	for _, a := range adjs {
		types = append(types, a.Type)
		assert.False(t, ShouldAutoApply(a, true, DefaultAutoApplyThreshold))
	}
	assert.ElementsMatch(t, []domain.AdjustmentType{domain.AdjustmentVolatility, domain.AdjustmentMethodSwitch}, types)
}

func TestShouldAutoApply_ConfidenceThreshold(t *testing.T) {
	high := domain.LearningAdjustment{Type: domain.AdjustmentGrowthRate, Confidence: 0.85}
	low := domain.LearningAdjustment{Type: domain.AdjustmentGrowthRate, Confidence: 0.6}
	category := domain.LearningAdjustment{Type: domain.AdjustmentCategoryDefault, Confidence: 0.95}

	assert.True(t, ShouldAutoApply(high, true, DefaultAutoApplyThreshold))
	assert.False(t, ShouldAutoApply(low, true, DefaultAutoApplyThreshold))
	assert.False(t, ShouldAutoApply(category, true, DefaultAutoApplyThreshold))
}

func TestCategoryDefaults(t *testing.T) {
	growth := []domain.LearningAdjustment{
		{OriginalValue: 0.1, AdjustedValue: 0.0, SourceRecordIDs: domain.Int64List{1}},
		{OriginalValue: 0.2, AdjustedValue: 0.1, SourceRecordIDs: domain.Int64List{2}},
		{OriginalValue: 0.3, AdjustedValue: 0.2, SourceRecordIDs: domain.Int64List{3}},
	}

	adj := CategoryDefaults("outdoor", "kentucky", growth, 1, now)
	require.NotNil(t, adj)
	assert.Equal(t, domain.AdjustmentCategoryDefault, adj.Type)
	assert.Equal(t, "outdoor", adj.Category)
	assert.InDelta(t, 0.2, adj.OriginalValue, 1e-9)
	assert.InDelta(t, 0.1, adj.AdjustedValue, 1e-9)
	assert.Equal(t, []int64{1, 2, 3}, []int64(adj.SourceRecordIDs))

	assert.Nil(t, CategoryDefaults("outdoor", "kentucky", growth[:2], 1, now))
}
