package memory

import (
	"context"
	"sort"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

func (s *Store) InsertAccuracyRecords(ctx context.Context, records []domain.ForecastAccuracyRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists := func(r domain.ForecastAccuracyRecord) bool {
		for _, cur := range s.accuracy {
			if cur.SKU == r.SKU && cur.Warehouse == r.Warehouse &&
				cur.ForecastDate.Equal(r.ForecastDate) && cur.PeriodStart.Equal(r.PeriodStart) {
				return true
			}
		}
		return false
	}

	inserted := 0
	for _, r := range records {
		if exists(r) {
			continue
		}
		r.ID = s.id()
		s.accuracy[r.ID] = r
		inserted++
	}
	return inserted, nil
}

func (s *Store) ListAwaitingActuals(ctx context.Context, asOf time.Time) ([]domain.ForecastAccuracyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ForecastAccuracyRecord
	for _, r := range s.accuracy {
		if r.ActualDemand == nil && r.PeriodEnd.Before(asOf) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveActual(ctx context.Context, record *domain.ForecastAccuracyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accuracy[record.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.ActualDemand = record.ActualDemand
	cur.AbsoluteError = record.AbsoluteError
	cur.PercentageError = record.PercentageError
	cur.StockoutAffected = record.StockoutAffected
	cur.ActualRecordedAt = record.ActualRecordedAt
	s.accuracy[record.ID] = cur
	return nil
}

func (s *Store) ListEvaluatedRecords(ctx context.Context, key domain.SKUKey) ([]domain.ForecastAccuracyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ForecastAccuracyRecord
	for _, r := range s.accuracy {
		if r.Key() == key && r.HasActual() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.After(out[j].PeriodStart)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) ListEvaluatedKeys(ctx context.Context) ([]domain.SKUKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[domain.SKUKey]bool)
	var out []domain.SKUKey
	for _, r := range s.accuracy {
		if r.HasActual() && !seen[r.Key()] {
			seen[r.Key()] = true
			out = append(out, r.Key())
		}
	}
	sortKeys(out)
	return out, nil
}

func (s *Store) MarkLearningApplied(ctx context.Context, ids []int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		r, ok := s.accuracy[id]
		if !ok {
			continue
		}
		r.LearningApplied = true
		t := at
		r.LearningAppliedDate = &t
		s.accuracy[id] = r
	}
	return nil
}

func (s *Store) SaveLearningAdjustment(ctx context.Context, adj *domain.LearningAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if adj.ID == 0 {
		adj.ID = s.id()
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = s.now()
	}
	row := *adj
	row.SourceRecordIDs = append(domain.Int64List(nil), adj.SourceRecordIDs...)
	s.learning[adj.ID] = row
	return nil
}

func (s *Store) GetLearningAdjustment(ctx context.Context, id int64) (*domain.LearningAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	adj, ok := s.learning[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &adj, nil
}

func (s *Store) ListLearningAdjustments(ctx context.Context, applied *bool) ([]domain.LearningAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.LearningAdjustment
	for _, adj := range s.learning {
		if applied != nil && adj.Applied != *applied {
			continue
		}
		out = append(out, adj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkAdjustmentApplied(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	adj, ok := s.learning[id]
	if !ok {
		return domain.ErrNotFound
	}
	adj.Applied = true
	t := at
	adj.AppliedDate = &t
	s.learning[id] = adj
	return nil
}
