// backend-go/internal/service/reorder_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/forecast"
	"github.com/andresuchdata/autopo-forecast/internal/engine/reorder"
	"github.com/andresuchdata/autopo-forecast/internal/engine/supply"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
)

// ReorderOptions are the planning parameters of recommendation generation
type ReorderOptions struct {
	Warehouses []string
	Workers    int
	Params     reorder.Params
	Supply     supply.Config
}

// ReorderOptionsFromConfig maps the forecast config onto reorder options
func ReorderOptionsFromConfig(cfg config.ForecastConfig) ReorderOptions {
	return ReorderOptions{
		Warehouses: cfg.Warehouses,
		Workers:    cfg.Workers,
		Params: reorder.Params{
			ReviewPeriodDays:    cfg.ReviewPeriodDays,
			DefaultLeadTimeDays: cfg.DefaultLeadTimeDays,
			BlendWeight:         cfg.ForecastBlendWeight,
		},
		Supply: supply.Config{
			HorizonDays:         cfg.PlanningHorizonDays,
			DefaultLeadTimeDays: cfg.DefaultLeadTimeDays,
		},
	}
}

// GenerateRequest selects the month and keys to plan
type GenerateRequest struct {
	OrderMonth time.Time `json:"order_month"`
	Warehouses []string  `json:"warehouses"`
	SKUs       []string  `json:"skus"`
}

// GenerateResult reports a generation pass
type GenerateResult struct {
	BatchResult
	OrderMonth time.Time `json:"order_month"`
	Locked     int       `json:"locked_skipped"`
	ForecastID *int64    `json:"forecast_run_id,omitempty"`
}

type ReorderService struct {
	catalog   repository.CatalogRepository
	sales     repository.SalesRepository
	supply    repository.SupplyRepository
	forecasts repository.ForecastRepository
	recs      repository.RecommendationRepository
	stats     *DemandStatsService
	manager   *ForecastManager
	opts      ReorderOptions
	now       func() time.Time
}

func NewReorderService(repos repository.Repositories, stats *DemandStatsService, manager *ForecastManager, opts ReorderOptions) *ReorderService {
	return &ReorderService{
		catalog:   repos.Catalog,
		sales:     repos.Sales,
		supply:    repos.Supply,
		forecasts: repos.Forecasts,
		recs:      repos.Recommendation,
		stats:     stats,
		manager:   manager,
		opts:      opts,
		now:       time.Now,
	}
}

// Generate computes one recommendation per key for the order month. Locked
// rows are left untouched.
func (s *ReorderService) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	month := req.OrderMonth
	if month.IsZero() {
		month = s.now()
	}
	month = domain.MonthStart(month)
	res := GenerateResult{OrderMonth: month}

	warehouses := lowerAll(req.Warehouses)
	if len(warehouses) == 0 {
		warehouses = s.opts.Warehouses
	}
	keys, err := planningKeys(ctx, s.catalog, s.sales, warehouses, req.SKUs)
	if err != nil {
		return res, err
	}

	latest, err := s.forecasts.LatestCompletedRun(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return res, fmt.Errorf("failed to load latest forecast run: %w", err)
	}
	if latest != nil {
		id := latest.ID
		res.ForecastID = &id
	}

	var locked int64
	batch, err := forEachKey(ctx, keys, s.opts.Workers, nil, func(ctx context.Context, key domain.SKUKey) error {
		existing, err := s.recs.FindRecommendation(ctx, key, month)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil && existing.Locked {
			atomic.AddInt64(&locked, 1)
			return nil
		}

		rec, err := s.recommend(ctx, key, month, latest, existing)
		if err != nil {
			return err
		}
		if err := s.recs.SaveRecommendation(ctx, &rec); err != nil {
			if errors.Is(err, domain.ErrRecommendationLocked) {
				atomic.AddInt64(&locked, 1)
				return nil
			}
			return fmt.Errorf("failed to save recommendation: %w", err)
		}
		return nil
	})
	res.BatchResult = batch
	res.Locked = int(locked)

	log.Info().
		Str("order_month", month.Format("2006-01")).
		Int("total", batch.Total).
		Int("failed", batch.Failed).
		Int("locked", res.Locked).
		Msg("recommendations generated")
	return res, err
}

// recommend gathers the inputs of one key and runs the engine. User overrides
// on the existing row feed the calculation.
func (s *ReorderService) recommend(ctx context.Context, key domain.SKUKey, month time.Time, run *domain.ForecastRun, existing *domain.OrderRecommendation) (domain.OrderRecommendation, error) {
	sku, err := lookupSKU(ctx, s.catalog, key.SKU)
	if err != nil {
		return domain.OrderRecommendation{}, fmt.Errorf("failed to load sku: %w", err)
	}
	stat, err := s.stats.Get(ctx, key)
	if err != nil {
		return domain.OrderRecommendation{}, err
	}

	var onHand float64
	inv, err := s.catalog.GetInventory(ctx, key)
	switch {
	case err == nil:
		onHand = inv.OnHand
	case !errors.Is(err, domain.ErrNotFound):
		return domain.OrderRecommendation{}, fmt.Errorf("failed to load inventory: %w", err)
	}

	shipments, err := s.supply.ListOpenShipments(ctx, key)
	if err != nil {
		return domain.OrderRecommendation{}, fmt.Errorf("failed to load pending shipments: %w", err)
	}
	pending := supply.Aggregate(shipments, supplyAsOf(month, s.now().UTC()), s.opts.Supply)

	var leadTime *domain.SupplierLeadTime
	if sku.SupplierID != 0 {
		leadTime, err = s.supply.GetLeadTimeStats(ctx, sku.SupplierID, key.Warehouse)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.OrderRecommendation{}, fmt.Errorf("failed to load lead time stats: %w", err)
		}
	}

	forecastQty, err := s.forecastQty(ctx, run, key, month)
	if err != nil {
		return domain.OrderRecommendation{}, err
	}

	in := reorder.Input{
		Key:         key,
		OrderMonth:  month,
		SKU:         sku,
		Stat:        *stat,
		ForecastQty: forecastQty,
		Inventory:   onHand,
		Supply:      pending,
		LeadTime:    leadTime,
		Params:      s.opts.Params,
	}
	if existing != nil {
		in.LeadTimeOverride = existing.LeadTimeOverride
		in.ArrivalOverride = existing.ArrivalOverride
	}

	rec := reorder.Recommend(in)
	if existing != nil {
		rec.ID = existing.ID
		rec.ConfirmedQty = existing.ConfirmedQty
		rec.CreatedAt = existing.CreatedAt
	}
	return rec, nil
}

// supplyAsOf anchors supply buckets on the inventory snapshot date when
// planning the current month
func supplyAsOf(month, now time.Time) time.Time {
	if now.After(month) && now.Before(month.AddDate(0, 1, 0)) {
		return now
	}
	return month
}

// forecastQty returns the effective forecast of the order month from the run,
// or nil when the run does not cover it
func (s *ReorderService) forecastQty(ctx context.Context, run *domain.ForecastRun, key domain.SKUKey, month time.Time) (*float64, error) {
	if run == nil || s.manager == nil {
		return nil, nil
	}
	start := domain.MonthStart(run.ForecastStart)
	idx := (month.Year()-start.Year())*12 + int(month.Month()) - int(start.Month())
	if idx < 0 || idx >= domain.ForecastMonths {
		return nil, nil
	}
	view, err := s.manager.GetDetail(ctx, run.ID, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if view.Detail.Method == forecast.MethodInsufficientData || idx >= len(view.Detail.MonthlyQty) {
		return nil, nil
	}
	q := view.Detail.MonthlyQty[idx]
	return &q, nil
}

func (s *ReorderService) Get(ctx context.Context, id int64) (*domain.OrderRecommendation, error) {
	return s.recs.GetRecommendation(ctx, id)
}

func (s *ReorderService) List(ctx context.Context, filter domain.RecommendationFilter) ([]domain.OrderRecommendation, int, error) {
	filter.Warehouse = strings.ToLower(filter.Warehouse)
	return s.recs.ListRecommendations(ctx, filter)
}

// Update applies user edits to an unlocked recommendation and recomputes it
// with the new overrides
func (s *ReorderService) Update(ctx context.Context, id int64, edit domain.RecommendationEdit) (*domain.OrderRecommendation, error) {
	rec, err := s.recs.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Locked {
		return nil, domain.ErrRecommendationLocked
	}
	if edit.ConfirmedQty != nil && *edit.ConfirmedQty < 0 {
		return nil, fmt.Errorf("%w: confirmed quantity cannot be negative", domain.ErrInvalidInput)
	}

	if edit.ConfirmedQty != nil {
		q := *edit.ConfirmedQty
		rec.ConfirmedQty = &q
	}
	if edit.LeadTimeOverride != nil {
		if *edit.LeadTimeOverride > 0 {
			lt := *edit.LeadTimeOverride
			rec.LeadTimeOverride = &lt
		} else {
			rec.LeadTimeOverride = nil
		}
	}
	if edit.ArrivalOverride != nil {
		at := edit.ArrivalOverride.UTC()
		rec.ArrivalOverride = &at
	}

	if err := s.recs.UpdateRecommendationEdits(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrRecommendationLocked) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update recommendation: %w", err)
	}

	latest, err := s.forecasts.LatestCompletedRun(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load latest forecast run: %w", err)
	}

	updated, err := s.recommend(ctx, rec.Key(), rec.OrderMonth, latest, rec)
	if err != nil {
		return nil, err
	}
	if err := s.recs.SaveRecommendation(ctx, &updated); err != nil {
		// locked after the edit landed; the stored row keeps the edit
		if errors.Is(err, domain.ErrRecommendationLocked) {
			return s.recs.GetRecommendation(ctx, id)
		}
		return nil, fmt.Errorf("failed to save recommendation: %w", err)
	}
	return &updated, nil
}

// Lock freezes a recommendation against edits and regeneration
func (s *ReorderService) Lock(ctx context.Context, id int64, user string) (*domain.OrderRecommendation, error) {
	if err := s.recs.SetRecommendationLock(ctx, id, true, user, s.now().UTC()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock recommendation: %w", err)
	}
	return s.recs.GetRecommendation(ctx, id)
}

// Unlock releases a lock so edits and regeneration apply again
func (s *ReorderService) Unlock(ctx context.Context, id int64) (*domain.OrderRecommendation, error) {
	if err := s.recs.SetRecommendationLock(ctx, id, false, "", time.Time{}); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to unlock recommendation: %w", err)
	}
	return s.recs.GetRecommendation(ctx, id)
}

// SupplyView returns the pending supply aggregation of a key as of asOf
func (s *ReorderService) SupplyView(ctx context.Context, key domain.SKUKey, asOf time.Time) (supply.Result, error) {
	shipments, err := s.supply.ListOpenShipments(ctx, key)
	if err != nil {
		return supply.Result{}, fmt.Errorf("failed to load pending shipments: %w", err)
	}
	return supply.Aggregate(shipments, asOf, s.opts.Supply), nil
}
