// backend-go/internal/service/seasonal_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/demandstats"
	"github.com/andresuchdata/autopo-forecast/internal/engine/seasonal"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
)

type SeasonalService struct {
	sales    repository.SalesRepository
	seasonal repository.SeasonalRepository
	workers  int
	now      func() time.Time
}

func NewSeasonalService(sales repository.SalesRepository, seasonalRepo repository.SeasonalRepository, workers int) *SeasonalService {
	return &SeasonalService{
		sales:    sales,
		seasonal: seasonalRepo,
		workers:  workers,
		now:      time.Now,
	}
}

// Profile returns the stored profile of a key, computing it on first use
func (s *SeasonalService) Profile(ctx context.Context, key domain.SKUKey) (domain.SeasonalProfile, error) {
	factors, err := s.seasonal.GetSeasonalFactors(ctx, key)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && len(factors) == 0) {
		return s.Recalculate(ctx, key)
	}
	if err != nil {
		return domain.SeasonalProfile{}, fmt.Errorf("failed to load seasonal factors: %w", err)
	}
	return profileFromFactors(key, factors), nil
}

// Recalculate rebuilds the 12 factors of a key from history, folds in the
// learned month multipliers and replaces the stored set
func (s *SeasonalService) Recalculate(ctx context.Context, key domain.SKUKey) (domain.SeasonalProfile, error) {
	rows, err := s.sales.ListMonthlySales(ctx, key)
	if err != nil {
		return domain.SeasonalProfile{}, fmt.Errorf("failed to load sales history: %w", err)
	}
	profile := seasonal.Calculate(key, demandstats.CorrectHistory(rows), s.now().UTC())

	learned, err := s.seasonal.ListSeasonalAdjustments(ctx, key)
	if err != nil {
		return domain.SeasonalProfile{}, fmt.Errorf("failed to load seasonal adjustments: %w", err)
	}
	profile = seasonal.ApplyLearned(profile, learned)

	if err := s.seasonal.SaveSeasonalFactors(ctx, key, profile.Factors); err != nil {
		return domain.SeasonalProfile{}, fmt.Errorf("failed to save seasonal factors: %w", err)
	}
	return profile, nil
}

// Learn compounds a multiplier onto the learned correction of one month and
// rebuilds the profile with it
func (s *SeasonalService) Learn(ctx context.Context, key domain.SKUKey, month int, multiplier float64, adjustmentID *int64) (domain.SeasonalProfile, error) {
	if month < 1 || month > 12 || multiplier <= 0 {
		return domain.SeasonalProfile{}, fmt.Errorf("%w: month %d multiplier %.4f", domain.ErrInvalidAdjustment, month, multiplier)
	}
	learned, err := s.seasonal.ListSeasonalAdjustments(ctx, key)
	if err != nil {
		return domain.SeasonalProfile{}, fmt.Errorf("failed to load seasonal adjustments: %w", err)
	}
	adj := domain.SeasonalAdjustment{SKU: key.SKU, Warehouse: key.Warehouse, Month: month, Multiplier: multiplier, AdjustmentID: adjustmentID}
	for _, prev := range learned {
		if prev.Month == month && prev.Multiplier > 0 {
			adj.Multiplier *= prev.Multiplier
		}
	}
	if err := s.seasonal.SaveSeasonalAdjustment(ctx, &adj); err != nil {
		return domain.SeasonalProfile{}, fmt.Errorf("failed to save seasonal adjustment: %w", err)
	}
	log.Info().Str("sku", key.SKU).Str("warehouse", key.Warehouse).Int("month", month).Float64("multiplier", adj.Multiplier).Msg("seasonal correction learned")
	return s.Recalculate(ctx, key)
}

// RecalculateAll rebuilds the profile of every key with sales history
func (s *SeasonalService) RecalculateAll(ctx context.Context, progress ProgressFunc) (BatchResult, error) {
	keys, err := s.sales.ListSalesKeys(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to list sales keys: %w", err)
	}
	res, err := forEachKey(ctx, keys, s.workers, progress, func(ctx context.Context, key domain.SKUKey) error {
		_, err := s.Recalculate(ctx, key)
		return err
	})
	log.Info().Int("total", res.Total).Int("failed", res.Failed).Msg("seasonal factors recalculated")
	return res, err
}

func profileFromFactors(key domain.SKUKey, factors []domain.SeasonalFactor) domain.SeasonalProfile {
	profile := domain.SeasonalProfile{Key: key, Factors: factors, PatternType: domain.PatternUnknown}
	if len(factors) > 0 {
		profile.PatternType = factors[0].PatternType
		profile.Significant = factors[0].StatisticalSignificance
	}
	return profile
}
