// backend-go/internal/service/growth_service.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/demandstats"
	"github.com/andresuchdata/autopo-forecast/internal/engine/growth"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
)

type GrowthService struct {
	catalog  repository.CatalogRepository
	sales    repository.SalesRepository
	supply   repository.SupplyRepository
	seasonal *SeasonalService
}

func NewGrowthService(catalog repository.CatalogRepository, sales repository.SalesRepository, supply repository.SupplyRepository, seasonalSvc *SeasonalService) *GrowthService {
	return &GrowthService{catalog: catalog, sales: sales, supply: supply, seasonal: seasonalSvc}
}

// Resolve returns the growth rate of a key. runOverride, when set, wins over
// everything else.
func (s *GrowthService) Resolve(ctx context.Context, key domain.SKUKey, runOverride *float64) (domain.GrowthRate, error) {
	sku, err := lookupSKU(ctx, s.catalog, key.SKU)
	if err != nil {
		return domain.GrowthRate{}, fmt.Errorf("failed to load sku: %w", err)
	}
	profile, err := s.seasonal.Profile(ctx, key)
	if err != nil {
		return domain.GrowthRate{}, err
	}
	return s.resolve(ctx, key, sku, profile, runOverride)
}

func (s *GrowthService) resolve(ctx context.Context, key domain.SKUKey, sku domain.SKU, profile domain.SeasonalProfile, runOverride *float64) (domain.GrowthRate, error) {
	in := growth.Input{SKU: sku, RunOverride: runOverride, Profile: profile}
	if runOverride != nil {
		return growth.Resolve(in), nil
	}

	override, err := s.catalog.GetKeyGrowthOverride(ctx, key)
	switch {
	case err == nil:
		rate := override.Rate
		in.KeyOverride = &rate
		return growth.Resolve(in), nil
	case !errors.Is(err, domain.ErrNotFound):
		return domain.GrowthRate{}, fmt.Errorf("failed to load growth override: %w", err)
	}
	if sku.GrowthOverride != nil {
		return growth.Resolve(in), nil
	}

	rows, err := s.sales.ListMonthlySales(ctx, key)
	if err != nil {
		return domain.GrowthRate{}, fmt.Errorf("failed to load sales history: %w", err)
	}
	in.History = demandstats.CorrectHistory(rows)

	if in.LaunchReceipts, err = s.launchReceipts(ctx, key, in.History); err != nil {
		return domain.GrowthRate{}, err
	}

	if sku.Category != "" {
		catRows, err := s.sales.ListCategorySales(ctx, sku.Category, key.Warehouse)
		if err != nil {
			return domain.GrowthRate{}, fmt.Errorf("failed to load category history: %w", err)
		}
		in.CategoryHistory = demandstats.CorrectHistory(catRows)
	}

	return growth.Resolve(in), nil
}

// launchReceipts sums the stock received over the launch window of a young
// SKU; sell-through of the launch is measured against it
func (s *GrowthService) launchReceipts(ctx context.Context, key domain.SKUKey, history []demandstats.CorrectedMonth) (float64, error) {
	if s.supply == nil || !growth.IsNewSKU(len(history)) {
		return 0, nil
	}
	from, to, ok := growth.LaunchWindow(history)
	if !ok {
		return 0, nil
	}
	shipments, err := s.supply.ListReceivedShipments(ctx, key, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to load launch receipts: %w", err)
	}
	var total float64
	for _, sh := range shipments {
		total += sh.Quantity
	}
	return total, nil
}
