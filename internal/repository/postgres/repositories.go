package postgres

import (
	"github.com/andresuchdata/autopo-forecast/internal/repository"
)

// NewRepositories wires every postgres repository onto one pool
func NewRepositories(db *DB) repository.Repositories {
	catalog := NewCatalogRepository(db)
	stats := NewStatsRepository(db)
	return repository.Repositories{
		Catalog:        catalog,
		Sales:          catalog,
		Supply:         NewSupplyRepository(db),
		DemandStats:    stats,
		Seasonal:       stats,
		Forecasts:      NewForecastRepository(db),
		Accuracy:       NewAccuracyRepository(db),
		Recommendation: NewRecommendationRepository(db),
	}
}

// Verify interface compliance
var (
	_ repository.CatalogRepository        = (*catalogRepository)(nil)
	_ repository.SalesRepository          = (*catalogRepository)(nil)
	_ repository.SupplyRepository         = (*supplyRepository)(nil)
	_ repository.DemandStatRepository     = (*statsRepository)(nil)
	_ repository.SeasonalRepository       = (*statsRepository)(nil)
	_ repository.ForecastRepository       = (*forecastRepository)(nil)
	_ repository.AccuracyRepository       = (*accuracyRepository)(nil)
	_ repository.RecommendationRepository = (*recommendationRepository)(nil)
)
