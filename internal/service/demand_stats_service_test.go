package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
)

func TestDemandStatsService_GetComputesAndStores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 12, 90)

	stat, err := f.stats.Get(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, stat.IsValid)
	assert.InDelta(t, 90, stat.Demand3MoWeighted, 1e-9)
	assert.Equal(t, 12, stat.SampleSize)

	stored, err := f.store.GetDemandStat(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, stored.IsValid)
}

func TestDemandStatsService_InvalidateForcesRecompute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 6, 90)

	_, err := f.stats.Get(ctx, testKey)
	require.NoError(t, err)

	require.NoError(t, f.store.UpsertMonthlySales(ctx, []domain.MonthlySales{
		{SKU: testKey.SKU, Warehouse: testKey.Warehouse, Month: month(2024, 1), UnitsSold: 190},
	}))
	require.NoError(t, f.stats.Invalidate(ctx, testKey, ReasonNewSalesMonth))

	stored, err := f.store.GetDemandStat(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, stored.IsValid)
	assert.Equal(t, ReasonNewSalesMonth, stored.InvalidationReason)

	stat, err := f.stats.Get(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, stat.IsValid)
	assert.Equal(t, 7, stat.SampleSize)
	// newest month carries weight 0.5
	assert.InDelta(t, 0.5*190+0.3*90+0.2*90, stat.Demand3MoWeighted, 1e-9)
}

// racingSales lands a new month and its invalidation right after the first
// history read
type racingSales struct {
	repository.SalesRepository
	once  sync.Once
	after func()
}

func (r *racingSales) ListMonthlySales(ctx context.Context, key domain.SKUKey) ([]domain.MonthlySales, error) {
	rows, err := r.SalesRepository.ListMonthlySales(ctx, key)
	r.once.Do(r.after)
	return rows, err
}

func TestDemandStatsService_InvalidationDuringRecalculateWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 6, 90)

	var svc *DemandStatsService
	sales := &racingSales{SalesRepository: f.store}
	sales.after = func() {
		require.NoError(t, f.store.UpsertMonthlySales(ctx, []domain.MonthlySales{
			{SKU: testKey.SKU, Warehouse: testKey.Warehouse, Month: month(2024, 1), UnitsSold: 190},
		}))
		require.NoError(t, svc.Invalidate(ctx, testKey, ReasonNewSalesMonth))
	}
	svc = NewDemandStatsService(sales, f.store, nil, 1)

	stat, err := svc.Recalculate(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, 7, stat.SampleSize)
	assert.InDelta(t, 0.5*190+0.3*90+0.2*90, stat.Demand3MoWeighted, 1e-9)

	stored, err := f.store.GetDemandStat(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, stored.IsValid)
	assert.Equal(t, 7, stored.SampleSize)
	assert.Equal(t, int64(1), stored.Version)
}

func TestDemandStatsService_RecalculateAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 3, 10)
	seedFlat(t, f.store, domain.SKUKey{SKU: "MUG-02", Warehouse: "burnaby"}, month(2024, 1), 3, 20)

	var last int
	res, err := f.stats.RecalculateAll(ctx, func(done, total int) { last = done })
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, last)
}

func TestDemandStatsService_NoHistory(t *testing.T) {
	f := newFixture(t, nil)

	stat, err := f.stats.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 0, stat.SampleSize)
	assert.Nil(t, stat.CV)
	assert.Equal(t, domain.VolatilityUnknown, stat.VolatilityClass)
}

func TestSeasonalService_ShortHistoryIsUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 6, 50)

	profile, err := f.seasonal.Profile(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, domain.PatternUnknown, profile.PatternType)
	assert.False(t, profile.IsSeasonal())
	for m := 1; m <= 12; m++ {
		assert.Equal(t, 1.0, profile.FactorFor(time.Month(m)))
	}

	stored, err := f.store.GetSeasonalFactors(ctx, testKey)
	require.NoError(t, err)
	assert.Len(t, stored, 12)
}

func TestSeasonalService_HolidayPattern(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	var rows []domain.MonthlySales
	for y := 2021; y <= 2023; y++ {
		for m := time.January; m <= time.December; m++ {
			units := 100.0
			if m == time.November || m == time.December {
				units = 300
			}
			// small noise keeps the within-month variance non-zero
			units += float64(y-2021) * float64(m%3)
			rows = append(rows, domain.MonthlySales{SKU: testKey.SKU, Warehouse: testKey.Warehouse, Month: month(y, m), UnitsSold: units})
		}
	}
	require.NoError(t, f.store.UpsertMonthlySales(ctx, rows))

	profile, err := f.seasonal.Recalculate(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, domain.PatternHoliday, profile.PatternType)
	assert.True(t, profile.Significant)
	assert.Greater(t, profile.FactorFor(time.December), 1.15)
	assert.Less(t, profile.FactorFor(time.June), 1.0)

	var sum float64
	for _, sf := range profile.Factors {
		sum += sf.Factor
	}
	assert.InDelta(t, 12, sum, 1e-6)
}

func TestGrowthService_ResolutionOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 4, 40)
	seedSKU(t, f.store, domain.SKU{SKU: testKey.SKU, GrowthStatus: domain.GrowthStatusViral})

	rate, err := f.growth.Resolve(ctx, testKey, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.GrowthNewSKU, rate.Source.Base)
	assert.InDelta(t, 0.15, rate.Rate, 1e-9)

	override := 0.3
	rate, err = f.growth.Resolve(ctx, testKey, &override)
	require.NoError(t, err)
	assert.Equal(t, "manual_override", rate.Source.String())
	assert.InDelta(t, 0.3, rate.Rate, 1e-9)

	skuRate := -0.1
	seedSKU(t, f.store, domain.SKU{SKU: testKey.SKU, GrowthStatus: domain.GrowthStatusViral, GrowthOverride: &skuRate})
	rate, err = f.growth.Resolve(ctx, testKey, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.GrowthManual, rate.Source.Base)
	assert.InDelta(t, -0.1, rate.Rate, 1e-9)

	require.NoError(t, f.store.SetKeyGrowthOverride(ctx, &domain.KeyGrowthOverride{SKU: testKey.SKU, Warehouse: testKey.Warehouse, Rate: 0.07}))
	rate, err = f.growth.Resolve(ctx, testKey, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.07, rate.Rate, 1e-9)
	rate, err = f.growth.Resolve(ctx, domain.SKUKey{SKU: testKey.SKU, Warehouse: "burnaby"}, nil)
	require.NoError(t, err)
	assert.InDelta(t, -0.1, rate.Rate, 1e-9)
}

func TestGrowthService_LaunchSellThroughFromReceipts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedSKU(t, f.store, domain.SKU{SKU: testKey.SKU, XYZClass: "Z"})
	require.NoError(t, f.store.UpsertMonthlySales(ctx, []domain.MonthlySales{
		{SKU: testKey.SKU, Warehouse: testKey.Warehouse, Month: month(2024, 1), UnitsSold: 40, StockoutDays: 20},
		{SKU: testKey.SKU, Warehouse: testKey.Warehouse, Month: month(2024, 2), UnitsSold: 40, StockoutDays: 19},
	}))

	// stocked out but nothing received: demand is not proven
	rate, err := f.growth.Resolve(ctx, testKey, nil)
	require.NoError(t, err)
	assert.False(t, rate.ProvenDemand)
	assert.Equal(t, "new_sku_Z", rate.Source.String())

	received := time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.UpsertShipment(ctx, &domain.PendingShipment{
		SKU: testKey.SKU, Warehouse: testKey.Warehouse, Quantity: 200,
		OrderDate: month(2023, 11), Status: domain.ShipmentReceived, ReceivedAt: &received,
	}))
	rate, err = f.growth.Resolve(ctx, testKey, nil)
	require.NoError(t, err)
	assert.False(t, rate.ProvenDemand, "80 of 200 sold")

	require.NoError(t, f.store.UpsertShipment(ctx, &domain.PendingShipment{
		SKU: "OTHER", Warehouse: testKey.Warehouse, Quantity: 5,
		OrderDate: month(2023, 11), Status: domain.ShipmentReceived, ReceivedAt: &received,
	}))
	shipments, err := f.store.ListReceivedShipments(ctx, testKey, month(2023, 12), month(2024, 3))
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	shipments[0].Quantity = 85
	require.NoError(t, f.store.UpsertShipment(ctx, &shipments[0]))

	rate, err = f.growth.Resolve(ctx, testKey, nil)
	require.NoError(t, err)
	assert.True(t, rate.ProvenDemand)
	assert.InDelta(t, 0.40, rate.Rate, 1e-9)
}

func TestGrowthService_DefaultWithoutHistory(t *testing.T) {
	f := newFixture(t, nil)

	rate, err := f.growth.Resolve(context.Background(), testKey, nil)
	require.NoError(t, err)
	assert.Equal(t, "default", rate.Source.String())
	assert.Equal(t, 0.0, rate.Rate)
}
