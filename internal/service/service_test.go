package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/jobs"
	"github.com/andresuchdata/autopo-forecast/internal/repository/memory"
	"github.com/andresuchdata/autopo-forecast/internal/storage"
)

var testKey = domain.SKUKey{SKU: "MUG-01", Warehouse: "kentucky"}

type fixture struct {
	store    *memory.Store
	stats    *DemandStatsService
	seasonal *SeasonalService
	growth   *GrowthService
	runner   *jobs.Runner
	manager  *ForecastManager
}

func newFixture(t *testing.T, archive storage.ObjectStorage) *fixture {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()

	stats := NewDemandStatsService(repos.Sales, repos.DemandStats, nil, 2)
	seasonal := NewSeasonalService(repos.Sales, repos.Seasonal, 2)
	growthSvc := NewGrowthService(repos.Catalog, repos.Sales, repos.Supply, seasonal)

	runner := jobs.NewRunner(context.Background())
	t.Cleanup(runner.Shutdown)

	manager := NewForecastManager(repos, stats, seasonal, growthSvc, archive, runner, []string{"kentucky", "burnaby"})
	return &fixture{
		store:    store,
		stats:    stats,
		seasonal: seasonal,
		growth:   growthSvc,
		runner:   runner,
		manager:  manager,
	}
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// seedFlat writes n months of constant sales ending at the month before end
func seedFlat(t *testing.T, store *memory.Store, key domain.SKUKey, end time.Time, n int, units float64) {
	t.Helper()
	rows := make([]domain.MonthlySales, 0, n)
	for i := n; i >= 1; i-- {
		rows = append(rows, domain.MonthlySales{
			SKU:       key.SKU,
			Warehouse: key.Warehouse,
			Month:     domain.MonthStart(end).AddDate(0, -i, 0),
			UnitsSold: units,
		})
	}
	require.NoError(t, store.UpsertMonthlySales(context.Background(), rows))
}

func seedSKU(t *testing.T, store *memory.Store, sku domain.SKU) {
	t.Helper()
	require.NoError(t, store.UpsertSKU(context.Background(), &sku))
}

func waitRun(t *testing.T, m *ForecastManager, id int64) *domain.ForecastRun {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return run
}

func TestPlanningKeys(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	seedFlat(t, store, domain.SKUKey{SKU: "B", Warehouse: "burnaby"}, month(2024, 1), 2, 5)
	seedFlat(t, store, domain.SKUKey{SKU: "Z", Warehouse: "toronto"}, month(2024, 1), 2, 5)
	seedSKU(t, store, domain.SKU{SKU: "A", Status: "active"})
	seedSKU(t, store, domain.SKU{SKU: "C", Status: "discontinued"})

	keys, err := planningKeys(ctx, store, store, []string{"kentucky", "burnaby"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.SKUKey{
		{SKU: "A", Warehouse: "burnaby"},
		{SKU: "A", Warehouse: "kentucky"},
		{SKU: "B", Warehouse: "burnaby"},
	}, keys)

	keys, err = planningKeys(ctx, store, store, []string{"kentucky", "burnaby"}, []string{"B"})
	require.NoError(t, err)
	assert.Equal(t, []domain.SKUKey{{SKU: "B", Warehouse: "burnaby"}}, keys)
}

func TestForEachKeyCountsFailures(t *testing.T) {
	keys := []domain.SKUKey{{SKU: "A"}, {SKU: "B"}, {SKU: "C"}}
	var calls []int

	res, err := forEachKey(context.Background(), keys, 2, func(done, total int) {
		calls = append(calls, total)
	}, func(ctx context.Context, key domain.SKUKey) error {
		if key.SKU == "B" {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "boom")
	assert.Len(t, calls, 3)
}

func TestForEachKeyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := forEachKey(ctx, []domain.SKUKey{{SKU: "A"}}, 1, nil, func(ctx context.Context, key domain.SKUKey) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Succeeded)
}

func TestLookupSKUFallsBackToBareRow(t *testing.T) {
	store := memory.NewStore()
	sku, err := lookupSKU(context.Background(), store, "NEW-1")
	require.NoError(t, err)
	assert.Equal(t, "NEW-1", sku.SKU)
	assert.True(t, sku.IsActive())
}

func TestLowerAll(t *testing.T) {
	assert.Nil(t, lowerAll(nil))
	assert.Equal(t, []string{"kentucky", "burnaby"}, lowerAll([]string{" Kentucky ", "", "BURNABY"}))
}
