package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/reorder"
	"github.com/andresuchdata/autopo-forecast/internal/engine/supply"
	"github.com/andresuchdata/autopo-forecast/internal/repository/memory"
)

func newReorder(f *fixture) *ReorderService {
	return NewReorderService(f.store.Repositories(), f.stats, f.manager, ReorderOptions{
		Warehouses: []string{"kentucky"},
		Workers:    2,
		Params: reorder.Params{
			ReviewPeriodDays:    30,
			DefaultLeadTimeDays: 60,
			BlendWeight:         0.5,
		},
		Supply: supply.Config{HorizonDays: 120, DefaultLeadTimeDays: 60},
	})
}

func TestReorderService_GenerateWithoutForecast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 12, 90)
	require.NoError(t, f.store.UpsertInventory(ctx, &domain.Inventory{SKU: testKey.SKU, Warehouse: testKey.Warehouse, OnHand: 60}))
	svc := newReorder(f)

	res, err := svc.Generate(ctx, GenerateRequest{OrderMonth: time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Succeeded)
	assert.Nil(t, res.ForecastID)
	assert.Equal(t, month(2024, 3), res.OrderMonth)

	rec, err := f.store.FindRecommendation(ctx, testKey, month(2024, 3))
	require.NoError(t, err)
	assert.Equal(t, 90.0, rec.CorrectedDemand)
	assert.Equal(t, 3.0, rec.DailyDemand)
	assert.Equal(t, 60, rec.LeadTimeDays)
	require.NotNil(t, rec.CoverageDays)
	assert.Equal(t, 20.0, *rec.CoverageDays)
	assert.Equal(t, domain.UrgencyMustOrder, rec.Urgency)
	assert.Equal(t, domain.UrgencyMustOrder, rec.AdvisoryUrgency)
	// 3/day over lead time plus two review periods, less 60 on hand
	assert.Equal(t, 300.0, rec.SuggestedQty)
	assert.Equal(t, month(2024, 3).AddDate(0, 0, 60), rec.ExpectedArrival)
}

func TestReorderService_BlendsLatestForecast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 24, 90)
	svc := newReorder(f)

	growth := 1.0
	run, err := f.manager.Submit(ctx, CreateRunRequest{Name: "doubling", ForecastStart: startOf(2024, 1), GrowthOverride: &growth})
	require.NoError(t, err)
	waitRun(t, f.manager, run.ID)

	res, err := svc.Generate(ctx, GenerateRequest{OrderMonth: month(2024, 3)})
	require.NoError(t, err)
	require.NotNil(t, res.ForecastID)
	assert.Equal(t, run.ID, *res.ForecastID)

	rec, err := f.store.FindRecommendation(ctx, testKey, month(2024, 3))
	require.NoError(t, err)
	// March is the third forecast month: 90 * 2^(2/12) = 101.02
	assert.InDelta(t, (90+101.02)/2, rec.CorrectedDemand, 0.01)

	// months outside the run fall back to history alone
	_, err = svc.Generate(ctx, GenerateRequest{OrderMonth: month(2025, 6)})
	require.NoError(t, err)
	rec, err = f.store.FindRecommendation(ctx, testKey, month(2025, 6))
	require.NoError(t, err)
	assert.Equal(t, 90.0, rec.CorrectedDemand)
}

func TestReorderService_UsesPendingSupplyAndLeadTimeStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 12, 90)
	seedSKU(t, f.store, domain.SKU{SKU: testKey.SKU, SupplierID: 7, ABCClass: "B"})
	f.store.SetLeadTimeStats(domain.SupplierLeadTime{SupplierID: 7, Warehouse: testKey.Warehouse, P95Days: 44.2, SampleCount: 10})

	arrival := month(2024, 3).AddDate(0, 0, 10)
	require.NoError(t, f.store.UpsertShipment(ctx, &domain.PendingShipment{
		SKU: testKey.SKU, Warehouse: testKey.Warehouse, SupplierID: 7, Quantity: 240,
		OrderDate: month(2024, 2), ExpectedArrival: &arrival, Status: domain.ShipmentOrdered,
	}))
	svc := newReorder(f)

	_, err := svc.Generate(ctx, GenerateRequest{OrderMonth: month(2024, 3)})
	require.NoError(t, err)

	rec, err := f.store.FindRecommendation(ctx, testKey, month(2024, 3))
	require.NoError(t, err)
	assert.Equal(t, 45, rec.LeadTimeDays)
	assert.Equal(t, 240.0, rec.PendingQty)
	assert.Equal(t, 240.0, rec.EffectivePendingQty)
	assert.Equal(t, 240.0, rec.PendingBreakdown.Immediate)
	require.NotNil(t, rec.CoverageDays)
	assert.Equal(t, 80.0, *rec.CoverageDays)
	assert.Equal(t, domain.UrgencyShouldOrder, rec.Urgency)

	view, err := svc.SupplyView(ctx, testKey, month(2024, 3))
	require.NoError(t, err)
	assert.Equal(t, 240.0, view.Raw)
}

func TestReorderService_LockAndEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 12, 90)
	require.NoError(t, f.store.UpsertInventory(ctx, &domain.Inventory{SKU: testKey.SKU, Warehouse: testKey.Warehouse, OnHand: 60}))
	svc := newReorder(f)

	_, err := svc.Generate(ctx, GenerateRequest{OrderMonth: month(2024, 3)})
	require.NoError(t, err)
	rec, err := f.store.FindRecommendation(ctx, testKey, month(2024, 3))
	require.NoError(t, err)

	negative := -5.0
	_, err = svc.Update(ctx, rec.ID, domain.RecommendationEdit{ConfirmedQty: &negative})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	qty := 250.0
	lt := 30
	updated, err := svc.Update(ctx, rec.ID, domain.RecommendationEdit{ConfirmedQty: &qty, LeadTimeOverride: &lt})
	require.NoError(t, err)
	require.NotNil(t, updated.ConfirmedQty)
	assert.Equal(t, 250.0, *updated.ConfirmedQty)
	assert.Equal(t, 30, updated.LeadTimeDays)
	assert.Equal(t, month(2024, 3).AddDate(0, 0, 30), updated.ExpectedArrival)
	// horizon shrinks to 30 + 60 days
	assert.Equal(t, 210.0, updated.SuggestedQty)

	locked, err := svc.Lock(ctx, rec.ID, "planner")
	require.NoError(t, err)
	assert.True(t, locked.Locked)
	assert.Equal(t, "planner", locked.LockedBy)

	_, err = svc.Update(ctx, rec.ID, domain.RecommendationEdit{ConfirmedQty: &qty})
	assert.ErrorIs(t, err, domain.ErrRecommendationLocked)

	require.NoError(t, f.store.UpsertInventory(ctx, &domain.Inventory{SKU: testKey.SKU, Warehouse: testKey.Warehouse, OnHand: 0}))
	res, err := svc.Generate(ctx, GenerateRequest{OrderMonth: month(2024, 3)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Locked)

	frozen, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, frozen.CurrentInventory)
	assert.Equal(t, 250.0, *frozen.ConfirmedQty)

	unlocked, err := svc.Unlock(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, unlocked.Locked)
	assert.Nil(t, unlocked.LockedAt)

	_, err = svc.Generate(ctx, GenerateRequest{OrderMonth: month(2024, 3)})
	require.NoError(t, err)
	regenerated, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, regenerated.CurrentInventory)
	require.NotNil(t, regenerated.ConfirmedQty)
	assert.Equal(t, 250.0, *regenerated.ConfirmedQty)
	require.NotNil(t, regenerated.LeadTimeOverride)
	assert.Equal(t, 30, regenerated.LeadTimeDays)

	list, total, err := svc.List(ctx, domain.RecommendationFilter{OrderMonth: month(2024, 3), Warehouse: "KENTUCKY"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
}

// lockingRecs locks the row right after the first read hands it out
type lockingRecs struct {
	*memory.Store
	once sync.Once
}

func (r *lockingRecs) GetRecommendation(ctx context.Context, id int64) (*domain.OrderRecommendation, error) {
	rec, err := r.Store.GetRecommendation(ctx, id)
	r.once.Do(func() {
		_ = r.Store.SetRecommendationLock(ctx, id, true, "buyer", month(2024, 3))
	})
	return rec, err
}

func TestReorderService_EditLosesToConcurrentLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 12, 90)
	svc := newReorder(f)

	_, err := svc.Generate(ctx, GenerateRequest{OrderMonth: month(2024, 3)})
	require.NoError(t, err)
	rec, err := f.store.FindRecommendation(ctx, testKey, month(2024, 3))
	require.NoError(t, err)

	svc.recs = &lockingRecs{Store: f.store}
	qty := 10.0
	_, err = svc.Update(ctx, rec.ID, domain.RecommendationEdit{ConfirmedQty: &qty})
	assert.ErrorIs(t, err, domain.ErrRecommendationLocked)

	stored, err := f.store.GetRecommendation(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.Locked)
	assert.Equal(t, "buyer", stored.LockedBy)
	assert.Nil(t, stored.ConfirmedQty)
}

func TestSupplyAsOf(t *testing.T) {
	mid := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, mid, supplyAsOf(month(2024, 3), mid))
	assert.Equal(t, month(2024, 5), supplyAsOf(month(2024, 5), mid))
	// backfilled months keep their own anchor
	assert.Equal(t, month(2024, 1), supplyAsOf(month(2024, 1), mid))
}

func TestReorderService_MidMonthBucketsFromToday(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedFlat(t, f.store, testKey, month(2024, 1), 12, 90)
	arrival := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.UpsertShipment(ctx, &domain.PendingShipment{
		SKU: testKey.SKU, Warehouse: testKey.Warehouse, Quantity: 120,
		OrderDate: month(2024, 2), ExpectedArrival: &arrival, Status: domain.ShipmentShipped,
	}))
	svc := newReorder(f)
	svc.now = func() time.Time { return time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC) }

	_, err := svc.Generate(ctx, GenerateRequest{OrderMonth: month(2024, 3)})
	require.NoError(t, err)

	rec, err := f.store.FindRecommendation(ctx, testKey, month(2024, 3))
	require.NoError(t, err)
	// 21 days out from the 20th, not 40 from the 1st
	assert.Equal(t, 120.0, rec.PendingBreakdown.Immediate)
	assert.Zero(t, rec.PendingBreakdown.NearTerm)
}
