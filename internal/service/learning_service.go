// backend-go/internal/service/learning_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/cache"
	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/learning"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
)

// LearningOptions controls automatic application of learning adjustments
type LearningOptions struct {
	AutoApply          bool
	AutoApplyThreshold float64
}

// LearningOptionsFromConfig reads the learning options from the forecast config
func LearningOptionsFromConfig(cfg config.ForecastConfig) LearningOptions {
	return LearningOptions{AutoApply: cfg.LearningAutoApply, AutoApplyThreshold: cfg.AutoApplyThreshold}
}

// AnalysisResult summarises one learning pass
type AnalysisResult struct {
	KeysAnalyzed int                         `json:"keys_analyzed"`
	Proposed     []domain.LearningAdjustment `json:"proposed"`
	AutoApplied  int                         `json:"auto_applied"`
}

type LearningService struct {
	forecasts repository.ForecastRepository
	accuracy  repository.AccuracyRepository
	catalog   repository.CatalogRepository
	sales     repository.SalesRepository
	stats     *DemandStatsService
	profiles  *SeasonalService
	growth    *GrowthService
	summaries cache.AccuracySummaryCache
	opts      LearningOptions
	now       func() time.Time
}

func NewLearningService(
	repos repository.Repositories,
	stats *DemandStatsService,
	profiles *SeasonalService,
	growthSvc *GrowthService,
	summaries cache.AccuracySummaryCache,
	opts LearningOptions,
) *LearningService {
	if summaries == nil {
		summaries = cache.NewNoopAccuracySummaryCache()
	}
	if opts.AutoApplyThreshold <= 0 {
		opts.AutoApplyThreshold = learning.DefaultAutoApplyThreshold
	}
	return &LearningService{
		forecasts: repos.Forecasts,
		accuracy:  repos.Accuracy,
		catalog:   repos.Catalog,
		sales:     repos.Sales,
		stats:     stats,
		profiles:  profiles,
		growth:    growthSvc,
		summaries: summaries,
		opts:      opts,
		now:       time.Now,
	}
}

// RunCompleted opens one accuracy record per forecast month of every detail
func (s *LearningService) RunCompleted(ctx context.Context, run domain.ForecastRun) error {
	details, err := s.forecasts.ListDetails(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("failed to list forecast details: %w", err)
	}

	var records []domain.ForecastAccuracyRecord
	for _, d := range details {
		key := d.Key()
		sku, err := lookupSKU(ctx, s.catalog, key.SKU)
		if err != nil {
			return err
		}
		stat, err := s.stats.Get(ctx, key)
		if err != nil {
			return err
		}
		profile, err := s.profiles.Profile(ctx, key)
		if err != nil {
			return err
		}
		records = append(records, learning.RecordsFromDetail(run, d, sku, *stat, profile)...)
	}

	inserted, err := s.accuracy.InsertAccuracyRecords(ctx, records)
	if err != nil {
		return fmt.Errorf("failed to insert accuracy records: %w", err)
	}
	log.Info().Int64("run_id", run.ID).Int("records", inserted).Int("duplicates", len(records)-inserted).Msg("accuracy records opened")
	return nil
}

// RecordActuals fills in realised demand for every record whose period ended
// before asOf. Records whose month has no sales row yet are left for later.
func (s *LearningService) RecordActuals(ctx context.Context, asOf time.Time) (int, error) {
	asOf = asOf.UTC()
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	pending, err := s.accuracy.ListAwaitingActuals(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to list records awaiting actuals: %w", err)
	}

	recorded := 0
	for i := range pending {
		rec := &pending[i]
		sales, err := s.sales.GetMonthlySales(ctx, rec.Key(), rec.PeriodStart)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return recorded, fmt.Errorf("failed to load sales for %s: %w", rec.Key(), err)
		}
		learning.ApplyActual(rec, *sales, s.now().UTC())
		if err := s.accuracy.SaveActual(ctx, rec); err != nil {
			return recorded, fmt.Errorf("failed to save actual: %w", err)
		}
		recorded++
	}

	if recorded > 0 {
		s.invalidateSummaries(ctx)
	}
	log.Info().Int("awaiting", len(pending)).Int("recorded", recorded).Time("as_of", asOf).Msg("actuals recorded")
	return recorded, nil
}

// Summary returns MAPE and bias per key
func (s *LearningService) Summary(ctx context.Context, filter cache.AccuracyFilter) ([]domain.AccuracySummary, error) {
	if cached, ok, err := s.summaries.GetSummary(ctx, filter); err != nil {
		log.Warn().Err(err).Msg("accuracy summary cache read failed")
	} else if ok {
		return cached, nil
	}

	keys := filter.Keys
	if len(keys) == 0 {
		var err error
		keys, err = s.accuracy.ListEvaluatedKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list evaluated keys: %w", err)
		}
	}

	out := make([]domain.AccuracySummary, 0, len(keys))
	for _, key := range keys {
		records, err := s.accuracy.ListEvaluatedRecords(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to list accuracy records: %w", err)
		}
		if len(records) == 0 {
			continue
		}
		out = append(out, learning.Summarize(key, records, filter.IncludeStockout))
	}

	if err := s.summaries.SetSummary(ctx, filter, out); err != nil {
		log.Warn().Err(err).Msg("accuracy summary cache write failed")
	}
	return out, nil
}

// Analyze proposes adjustments for every evaluated key and auto-applies the
// confident ones when enabled
func (s *LearningService) Analyze(ctx context.Context) (AnalysisResult, error) {
	var res AnalysisResult

	keys, err := s.accuracy.ListEvaluatedKeys(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list evaluated keys: %w", err)
	}

	pendingFlag := false
	pending, err := s.accuracy.ListLearningAdjustments(ctx, &pendingFlag)
	if err != nil {
		return res, fmt.Errorf("failed to list pending adjustments: %w", err)
	}
	open := make(map[string]bool, len(pending))
	for _, p := range pending {
		open[adjustmentSlot(p)] = true
	}

	type categoryKey struct{ category, warehouse string }
	byCategory := make(map[categoryKey][]domain.LearningAdjustment)
	quality := make(map[categoryKey]float64)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		proposed, sku, stat, err := s.analyzeKey(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("sku", key.SKU).Str("warehouse", key.Warehouse).Msg("learning analysis failed")
			continue
		}
		res.KeysAnalyzed++

		for i := range proposed {
			adj := proposed[i]
			adj.Category = sku.Category
			if adj.Type == domain.AdjustmentGrowthRate && sku.Category != "" {
				ck := categoryKey{sku.Category, key.Warehouse}
				byCategory[ck] = append(byCategory[ck], adj)
				quality[ck] += stat.DataQuality
			}
			if open[adjustmentSlot(adj)] {
				continue
			}
			saved, err := s.propose(ctx, adj)
			if err != nil {
				return res, err
			}
			open[adjustmentSlot(*saved)] = true
			if saved.Applied {
				res.AutoApplied++
			}
			res.Proposed = append(res.Proposed, *saved)
		}
	}

	for ck, growthAdjs := range byCategory {
		avgQuality := quality[ck] / float64(len(growthAdjs))
		adj := learning.CategoryDefaults(ck.category, ck.warehouse, growthAdjs, avgQuality, s.now().UTC())
		if adj == nil || open[adjustmentSlot(*adj)] {
			continue
		}
		saved, err := s.propose(ctx, *adj)
		if err != nil {
			return res, err
		}
		res.Proposed = append(res.Proposed, *saved)
	}

	log.Info().Int("keys", res.KeysAnalyzed).Int("proposed", len(res.Proposed)).Int("auto_applied", res.AutoApplied).Msg("learning pass finished")
	return res, nil
}

func (s *LearningService) analyzeKey(ctx context.Context, key domain.SKUKey) ([]domain.LearningAdjustment, domain.SKU, *domain.DemandStat, error) {
	records, err := s.accuracy.ListEvaluatedRecords(ctx, key)
	if err != nil {
		return nil, domain.SKU{}, nil, fmt.Errorf("failed to list accuracy records: %w", err)
	}
	fresh := records[:0:0]
	for _, r := range records {
		if !r.LearningApplied {
			fresh = append(fresh, r)
		}
	}

	sku, err := lookupSKU(ctx, s.catalog, key.SKU)
	if err != nil {
		return nil, sku, nil, err
	}
	stat, err := s.stats.Get(ctx, key)
	if err != nil {
		return nil, sku, nil, err
	}
	profile, err := s.profiles.Profile(ctx, key)
	if err != nil {
		return nil, sku, nil, err
	}
	rate, err := s.growth.resolve(ctx, key, sku, profile, nil)
	if err != nil {
		return nil, sku, nil, err
	}

	factors := make(map[int]float64, len(profile.Factors))
	for _, f := range profile.Factors {
		factors[f.Month] = profile.EffectiveFactor(time.Month(f.Month))
	}

	proposed := learning.Analyze(learning.Input{
		Key:             key,
		Records:         fresh,
		GrowthRate:      rate.Rate,
		SeasonalFactors: factors,
		DataQuality:     stat.DataQuality,
		VolatilityClass: stat.VolatilityClass,
	}, s.now().UTC())
	return proposed, sku, stat, nil
}

// propose stores the adjustment and applies it when confident enough
func (s *LearningService) propose(ctx context.Context, adj domain.LearningAdjustment) (*domain.LearningAdjustment, error) {
	if err := s.accuracy.SaveLearningAdjustment(ctx, &adj); err != nil {
		return nil, fmt.Errorf("failed to save learning adjustment: %w", err)
	}
	if learning.ShouldAutoApply(adj, s.opts.AutoApply, s.opts.AutoApplyThreshold) {
		return s.Apply(ctx, adj.ID)
	}
	return &adj, nil
}

// ListAdjustments returns adjustments, optionally filtered by applied state
func (s *LearningService) ListAdjustments(ctx context.Context, applied *bool) ([]domain.LearningAdjustment, error) {
	return s.accuracy.ListLearningAdjustments(ctx, applied)
}

// Apply pushes an adjustment into the forecast parameters. Volatility and
// method switch adjustments are acknowledged only; they change no parameter.
func (s *LearningService) Apply(ctx context.Context, id int64) (*domain.LearningAdjustment, error) {
	adj, err := s.accuracy.GetLearningAdjustment(ctx, id)
	if err != nil {
		return nil, err
	}
	if adj.Applied {
		return adj, nil
	}

	key := adj.Key()
	switch adj.Type {
	case domain.AdjustmentGrowthRate:
		override := &domain.KeyGrowthOverride{SKU: key.SKU, Warehouse: key.Warehouse, Rate: adj.AdjustedValue, AdjustmentID: &adj.ID}
		if err := s.catalog.SetKeyGrowthOverride(ctx, override); err != nil {
			return nil, fmt.Errorf("failed to set growth override: %w", err)
		}
	case domain.AdjustmentSeasonalFactor:
		if adj.Month == nil || adj.OriginalValue <= 0 {
			return nil, fmt.Errorf("%w: seasonal adjustment %d needs a month and a positive original factor", domain.ErrInvalidAdjustment, id)
		}
		if _, err := s.profiles.Learn(ctx, key, *adj.Month, adj.AdjustedValue/adj.OriginalValue, &adj.ID); err != nil {
			return nil, err
		}
	case domain.AdjustmentCategoryDefault:
		if err := s.applyCategoryDefault(ctx, *adj); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	if err := s.accuracy.MarkAdjustmentApplied(ctx, id, now); err != nil {
		return nil, fmt.Errorf("failed to mark adjustment applied: %w", err)
	}
	if len(adj.SourceRecordIDs) > 0 {
		if err := s.accuracy.MarkLearningApplied(ctx, adj.SourceRecordIDs, now); err != nil {
			return nil, fmt.Errorf("failed to mark accuracy records: %w", err)
		}
	}
	adj.Applied = true
	adj.AppliedDate = &now

	log.Info().Int64("adjustment_id", id).Str("type", string(adj.Type)).Str("sku", adj.SKU).Float64("adjusted", adj.AdjustedValue).Msg("learning adjustment applied")
	return adj, nil
}

// applyCategoryDefault sets the growth override of every category SKU at the
// adjustment's warehouse that has no override yet
func (s *LearningService) applyCategoryDefault(ctx context.Context, adj domain.LearningAdjustment) error {
	skus, err := s.catalog.ListSKUs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list skus: %w", err)
	}
	for _, sku := range skus {
		if sku.Category != adj.Category || sku.GrowthOverride != nil {
			continue
		}
		key := domain.SKUKey{SKU: sku.SKU, Warehouse: adj.Warehouse}
		_, err := s.catalog.GetKeyGrowthOverride(ctx, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to load growth override for %s: %w", key, err)
		}
		override := &domain.KeyGrowthOverride{SKU: sku.SKU, Warehouse: adj.Warehouse, Rate: adj.AdjustedValue, AdjustmentID: &adj.ID}
		if err := s.catalog.SetKeyGrowthOverride(ctx, override); err != nil {
			return fmt.Errorf("failed to set growth override for %s: %w", key, err)
		}
	}
	return nil
}

func (s *LearningService) invalidateSummaries(ctx context.Context) {
	if err := s.summaries.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("accuracy summary cache invalidate failed")
	}
}

func adjustmentSlot(a domain.LearningAdjustment) string {
	month := 0
	if a.Month != nil {
		month = *a.Month
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d", a.Type, a.SKU, a.Warehouse, a.Category, month)
}
