package memory

import (
	"context"
	"sort"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

func (s *Store) GetDemandStat(ctx context.Context, key domain.SKUKey) (*domain.DemandStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.demandStats[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &stat, nil
}

func (s *Store) SaveDemandStat(ctx context.Context, stat *domain.DemandStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.demandStats[stat.Key()]
	if (ok && cur.Version != stat.Version) || (!ok && stat.Version != 0) {
		return domain.ErrStaleStat
	}
	s.demandStats[stat.Key()] = *stat
	return nil
}

func (s *Store) InvalidateDemandStat(ctx context.Context, key domain.SKUKey, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.demandStats[key]
	if !ok {
		stat = domain.DemandStat{
			SKU:             key.SKU,
			Warehouse:       key.Warehouse,
			VolatilityClass: domain.VolatilityUnknown,
			CalculatedAt:    s.now(),
		}
	}
	stat.IsValid = false
	stat.InvalidationReason = reason
	stat.Version++
	s.demandStats[key] = stat
	return nil
}

func (s *Store) GetSeasonalFactors(ctx context.Context, key domain.SKUKey) ([]domain.SeasonalFactor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	factors, ok := s.seasonal[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.SeasonalFactor(nil), factors...), nil
}

func (s *Store) SaveSeasonalFactors(ctx context.Context, key domain.SKUKey, factors []domain.SeasonalFactor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := append([]domain.SeasonalFactor(nil), factors...)
	sort.Slice(stored, func(i, j int) bool { return stored[i].Month < stored[j].Month })
	s.seasonal[key] = stored
	return nil
}

func (s *Store) ListSeasonalAdjustments(ctx context.Context, key domain.SKUKey) ([]domain.SeasonalAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SeasonalAdjustment, 0, len(s.seasonalAdj[key]))
	for _, adj := range s.seasonalAdj[key] {
		out = append(out, adj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (s *Store) SaveSeasonalAdjustment(ctx context.Context, adj *domain.SeasonalAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.SKUKey{SKU: adj.SKU, Warehouse: adj.Warehouse}
	if s.seasonalAdj[key] == nil {
		s.seasonalAdj[key] = make(map[int]domain.SeasonalAdjustment)
	}
	adj.UpdatedAt = s.now()
	s.seasonalAdj[key][adj.Month] = *adj
	return nil
}
