package repository

import (
	"context"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

// DemandStatRepository persists demand statistics as whole records
type DemandStatRepository interface {
	GetDemandStat(ctx context.Context, key domain.SKUKey) (*domain.DemandStat, error)
	// SaveDemandStat stores the stat when the stored version still equals
	// stat.Version and returns domain.ErrStaleStat otherwise
	SaveDemandStat(ctx context.Context, stat *domain.DemandStat) error
	// InvalidateDemandStat flags the stat and bumps its version, creating an
	// invalid placeholder when none is stored yet
	InvalidateDemandStat(ctx context.Context, key domain.SKUKey, reason string) error
}

// SeasonalRepository persists the 12 monthly factors of a key
type SeasonalRepository interface {
	GetSeasonalFactors(ctx context.Context, key domain.SKUKey) ([]domain.SeasonalFactor, error)
	// SaveSeasonalFactors replaces every factor of the key in one write
	SaveSeasonalFactors(ctx context.Context, key domain.SKUKey, factors []domain.SeasonalFactor) error
	ListSeasonalAdjustments(ctx context.Context, key domain.SKUKey) ([]domain.SeasonalAdjustment, error)
	// SaveSeasonalAdjustment upserts the learned multiplier of one month
	SaveSeasonalAdjustment(ctx context.Context, adj *domain.SeasonalAdjustment) error
}
