package memory

import (
	"context"
	"sort"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

func (s *Store) CreateRun(ctx context.Context, run *domain.ForecastRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.ID = s.id()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	s.runs[run.ID] = cloneRun(*run)
	return nil
}

func (s *Store) GetRun(ctx context.Context, id int64) (*domain.ForecastRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	run = cloneRun(run)
	return &run, nil
}

func (s *Store) UpdateRun(ctx context.Context, run *domain.ForecastRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return domain.ErrNotFound
	}
	s.runs[run.ID] = cloneRun(*run)
	return nil
}

func (s *Store) ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.ForecastRun, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ForecastRun
	for _, run := range s.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if run.Archived && !filter.IncludeArchived {
			continue
		}
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	return paginate(out, filter.Page, filter.PageSize), total, nil
}

func (s *Store) ListRunsByStatus(ctx context.Context, status domain.RunStatus) ([]domain.ForecastRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ForecastRun
	for _, run := range s.runs {
		if run.Status == status {
			out = append(out, cloneRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].QueuedAt, out[j].QueuedAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.Before(*b)
		}
		if (a == nil) != (b == nil) {
			return a != nil
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) LatestCompletedRun(ctx context.Context) (*domain.ForecastRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.ForecastRun
	for _, run := range s.runs {
		if run.Status != domain.RunStatusCompleted {
			continue
		}
		if latest == nil || run.ID > latest.ID {
			r := cloneRun(run)
			latest = &r
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

func (s *Store) GetRunningRunID(ctx context.Context) (*int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runningID == nil {
		return nil, nil
	}
	id := *s.runningID
	return &id, nil
}

func (s *Store) SetRunningRunID(ctx context.Context, id *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == nil {
		s.runningID = nil
		return nil
	}
	v := *id
	s.runningID = &v
	return nil
}

func (s *Store) SaveDetail(ctx context.Context, detail *domain.ForecastDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := cloneDetail(*detail)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}
	s.details[detailKey{runID: detail.RunID, key: detail.Key()}] = row
	return nil
}

func (s *Store) GetDetail(ctx context.Context, runID int64, key domain.SKUKey) (*domain.ForecastDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.details[detailKey{runID: runID, key: key}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	row = cloneDetail(row)
	return &row, nil
}

func (s *Store) ListDetails(ctx context.Context, runID int64) ([]domain.ForecastDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ForecastDetail
	for k, row := range s.details {
		if k.runID == runID {
			out = append(out, cloneDetail(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SKU != out[j].SKU {
			return out[i].SKU < out[j].SKU
		}
		return out[i].Warehouse < out[j].Warehouse
	})
	return out, nil
}

func (s *Store) DeleteDetails(ctx context.Context, runID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.details {
		if k.runID == runID {
			delete(s.details, k)
		}
	}
	return nil
}

func (s *Store) SetDetailOverride(ctx context.Context, runID int64, key domain.SKUKey, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := detailKey{runID: runID, key: key}
	row, ok := s.details[k]
	if !ok {
		return domain.ErrNotFound
	}
	row.ManualOverride = true
	row.OverrideReason = reason
	s.details[k] = row
	return nil
}

func (s *Store) RecordRunError(ctx context.Context, runErr *domain.RunError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if runErr.CreatedAt.IsZero() {
		runErr.CreatedAt = s.now()
	}
	s.runErrors[runErr.RunID] = append(s.runErrors[runErr.RunID], *runErr)
	return nil
}

func (s *Store) ListRunErrors(ctx context.Context, runID int64) ([]domain.RunError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RunError(nil), s.runErrors[runID]...), nil
}

func (s *Store) CreateAdjustment(ctx context.Context, adj *domain.ForecastAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	adj.ID = s.id()
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = s.now()
	}
	s.adjustments = append(s.adjustments, *adj)
	return nil
}

func (s *Store) ListAdjustments(ctx context.Context, runID int64, key domain.SKUKey) ([]domain.ForecastAdjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ForecastAdjustment
	for _, adj := range s.adjustments {
		if adj.RunID == runID && adj.SKU == key.SKU && adj.Warehouse == key.Warehouse {
			out = append(out, adj)
		}
	}
	return out, nil
}

func cloneRun(run domain.ForecastRun) domain.ForecastRun {
	run.SKUFilter = append(domain.StringList(nil), run.SKUFilter...)
	run.WarehouseList = append(domain.StringList(nil), run.WarehouseList...)
	return run
}

func cloneDetail(d domain.ForecastDetail) domain.ForecastDetail {
	d.MonthlyQty = append(domain.QtyCells(nil), d.MonthlyQty...)
	d.MonthlyRevenue = append(domain.RevenueCells(nil), d.MonthlyRevenue...)
	return d
}

func paginate[T any](rows []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return rows
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []T{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
