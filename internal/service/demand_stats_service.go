// backend-go/internal/service/demand_stats_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/cache"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/demandstats"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
)

// Invalidation reasons recorded on demand stats
const (
	ReasonNewSalesMonth      = "new sales month"
	ReasonStockoutCorrection = "stockout correction change"
	ReasonManual             = "manual invalidate"
)

const maxRecalculateAttempts = 3

type DemandStatsService struct {
	sales   repository.SalesRepository
	stats   repository.DemandStatRepository
	cache   cache.DemandStatCache
	workers int
	now     func() time.Time
}

func NewDemandStatsService(sales repository.SalesRepository, stats repository.DemandStatRepository, statCache cache.DemandStatCache, workers int) *DemandStatsService {
	if statCache == nil {
		statCache = cache.NewNoopDemandStatCache()
	}
	return &DemandStatsService{
		sales:   sales,
		stats:   stats,
		cache:   statCache,
		workers: workers,
		now:     time.Now,
	}
}

// Get returns a valid stat for the key, recomputing when the stored entry is
// missing or invalidated
func (s *DemandStatsService) Get(ctx context.Context, key domain.SKUKey) (*domain.DemandStat, error) {
	if cached, ok, err := s.cache.GetStat(ctx, key); err != nil {
		log.Warn().Err(err).Str("sku", key.SKU).Str("warehouse", key.Warehouse).Msg("demand stat cache read failed")
	} else if ok && cached.IsValid {
		return cached, nil
	}

	stored, err := s.stats.GetDemandStat(ctx, key)
	switch {
	case err == nil && stored.IsValid:
		s.writeCache(ctx, stored)
		return stored, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("failed to load demand stat: %w", err)
	}

	return s.Recalculate(ctx, key)
}

// Recalculate recomputes the stat from sales history and stores it whole.
// An invalidation that lands while the history is being read makes the save
// fail as stale, and the stat is computed again from fresh rows.
func (s *DemandStatsService) Recalculate(ctx context.Context, key domain.SKUKey) (*domain.DemandStat, error) {
	for attempt := 1; ; attempt++ {
		version, err := s.storedVersion(ctx, key)
		if err != nil {
			return nil, err
		}
		rows, err := s.sales.ListMonthlySales(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load sales history: %w", err)
		}

		stat := demandstats.Calculate(key, rows, s.now().UTC())
		stat.Version = version
		err = s.stats.SaveDemandStat(ctx, &stat)
		if errors.Is(err, domain.ErrStaleStat) && attempt < maxRecalculateAttempts {
			log.Debug().Str("sku", key.SKU).Str("warehouse", key.Warehouse).Int("attempt", attempt).Msg("demand stat invalidated during recalculation, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save demand stat: %w", err)
		}
		s.writeCache(ctx, &stat)
		s.dropCacheIfStale(ctx, &stat)
		return &stat, nil
	}
}

func (s *DemandStatsService) storedVersion(ctx context.Context, key domain.SKUKey) (int64, error) {
	stored, err := s.stats.GetDemandStat(ctx, key)
	switch {
	case err == nil:
		return stored.Version, nil
	case errors.Is(err, domain.ErrNotFound):
		return 0, nil
	default:
		return 0, fmt.Errorf("failed to load demand stat: %w", err)
	}
}

// dropCacheIfStale evicts a cache entry written after an invalidation already
// bumped the stored row
func (s *DemandStatsService) dropCacheIfStale(ctx context.Context, stat *domain.DemandStat) {
	stored, err := s.stats.GetDemandStat(ctx, stat.Key())
	if err == nil && stored.IsValid && stored.Version == stat.Version {
		return
	}
	if err := s.cache.Invalidate(ctx, stat.Key()); err != nil {
		log.Warn().Err(err).Str("sku", stat.SKU).Str("warehouse", stat.Warehouse).Msg("demand stat cache invalidate failed")
	}
}

// Invalidate flags the stat so the next read recomputes it
func (s *DemandStatsService) Invalidate(ctx context.Context, key domain.SKUKey, reason string) error {
	if err := s.stats.InvalidateDemandStat(ctx, key, reason); err != nil {
		return fmt.Errorf("failed to invalidate demand stat: %w", err)
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		log.Warn().Err(err).Str("sku", key.SKU).Str("warehouse", key.Warehouse).Msg("demand stat cache invalidate failed")
	}
	log.Debug().Str("sku", key.SKU).Str("warehouse", key.Warehouse).Str("reason", reason).Msg("demand stat invalidated")
	return nil
}

// RecalculateAll recomputes every key with sales history
func (s *DemandStatsService) RecalculateAll(ctx context.Context, progress ProgressFunc) (BatchResult, error) {
	keys, err := s.sales.ListSalesKeys(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to list sales keys: %w", err)
	}
	return s.RecalculateKeys(ctx, keys, progress)
}

// RecalculateKeys recomputes the given keys in parallel
func (s *DemandStatsService) RecalculateKeys(ctx context.Context, keys []domain.SKUKey, progress ProgressFunc) (BatchResult, error) {
	res, err := forEachKey(ctx, keys, s.workers, progress, func(ctx context.Context, key domain.SKUKey) error {
		_, err := s.Recalculate(ctx, key)
		return err
	})
	log.Info().Int("total", res.Total).Int("failed", res.Failed).Msg("demand stats recalculated")
	return res, err
}

func (s *DemandStatsService) writeCache(ctx context.Context, stat *domain.DemandStat) {
	if err := s.cache.SetStat(ctx, stat); err != nil {
		log.Warn().Err(err).Str("sku", stat.SKU).Str("warehouse", stat.Warehouse).Msg("demand stat cache write failed")
	}
}
