package memory

import (
	"context"
	"sort"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

func (s *Store) GetRecommendation(ctx context.Context, id int64) (*domain.OrderRecommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recommendations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) FindRecommendation(ctx context.Context, key domain.SKUKey, month time.Time) (*domain.OrderRecommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.findRecommendation(key, month); ok {
		return &rec, nil
	}
	return nil, domain.ErrNotFound
}

func (s *Store) findRecommendation(key domain.SKUKey, month time.Time) (domain.OrderRecommendation, bool) {
	month = domain.MonthStart(month)
	for _, rec := range s.recommendations {
		if rec.Key() == key && rec.OrderMonth.Equal(month) {
			return rec, true
		}
	}
	return domain.OrderRecommendation{}, false
}

func (s *Store) SaveRecommendation(ctx context.Context, rec *domain.OrderRecommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.OrderMonth = domain.MonthStart(rec.OrderMonth)
	now := s.now()
	if cur, ok := s.findRecommendation(rec.Key(), rec.OrderMonth); ok {
		if cur.Locked {
			return domain.ErrRecommendationLocked
		}
		rec.ID = cur.ID
		rec.CreatedAt = cur.CreatedAt
		// user edits survive regeneration
		rec.ConfirmedQty = cur.ConfirmedQty
		rec.LeadTimeOverride = cur.LeadTimeOverride
		rec.ArrivalOverride = cur.ArrivalOverride
	} else {
		rec.ID = s.id()
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.recommendations[rec.ID] = *rec
	return nil
}

func (s *Store) UpdateRecommendationEdits(ctx context.Context, rec *domain.OrderRecommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recommendations[rec.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Locked {
		return domain.ErrRecommendationLocked
	}
	cur.ConfirmedQty = rec.ConfirmedQty
	cur.LeadTimeOverride = rec.LeadTimeOverride
	cur.ArrivalOverride = rec.ArrivalOverride
	cur.UpdatedAt = s.now()
	s.recommendations[rec.ID] = cur
	return nil
}

func (s *Store) SetRecommendationLock(ctx context.Context, id int64, locked bool, user string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.recommendations[id]
	if !ok {
		return domain.ErrNotFound
	}
	switch {
	case locked && cur.Locked:
		return nil
	case locked:
		cur.Locked = true
		cur.LockedBy = user
		cur.LockedAt = &at
	default:
		cur.Locked = false
		cur.LockedBy = ""
		cur.LockedAt = nil
	}
	cur.UpdatedAt = s.now()
	s.recommendations[id] = cur
	return nil
}

func (s *Store) ListRecommendations(ctx context.Context, filter domain.RecommendationFilter) ([]domain.OrderRecommendation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.OrderRecommendation
	for _, rec := range s.recommendations {
		if !filter.OrderMonth.IsZero() && !rec.OrderMonth.Equal(domain.MonthStart(filter.OrderMonth)) {
			continue
		}
		if filter.Warehouse != "" && rec.Warehouse != filter.Warehouse {
			continue
		}
		if filter.Urgency != "" && rec.Urgency != filter.Urgency {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SKU != out[j].SKU {
			return out[i].SKU < out[j].SKU
		}
		return out[i].Warehouse < out[j].Warehouse
	})
	total := len(out)
	return paginate(out, filter.Page, filter.PageSize), total, nil
}
