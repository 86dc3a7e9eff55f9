// backend-go/internal/service/ingest_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
)

// ImportResult reports the pipeline runs of one import and the keys whose
// demand stats were invalidated
type ImportResult struct {
	Files       int                     `json:"files"`
	Runs        []*pipeline.PipelineRun `json:"runs"`
	Invalidated int                     `json:"invalidated"`
}

// IngestService loads sales history files into the sales store
type IngestService struct {
	sales    repository.SalesRepository
	stats    *DemandStatsService
	runs     pipeline.RunStore
	pipeline pipeline.Pipeline
	config   pipeline.PipelineConfig
}

func NewIngestService(sales repository.SalesRepository, stats *DemandStatsService, runs pipeline.RunStore, p pipeline.Pipeline, cfg pipeline.PipelineConfig) *IngestService {
	return &IngestService{
		sales:    sales,
		stats:    stats,
		runs:     runs,
		pipeline: p,
		config:   cfg,
	}
}

// Import runs the pipeline over files and directories. Directories are
// walked for files the pipeline accepts.
func (s *IngestService) Import(ctx context.Context, paths []string) (ImportResult, error) {
	files, err := s.collect(paths)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Files: len(files)}
	if len(files) == 0 {
		return res, nil
	}

	invalidated := make(map[domain.SKUKey]struct{})
	sink := func(ctx context.Context, rows []pipeline.TransformedRow) error {
		n, err := s.store(ctx, rows, invalidated)
		res.Invalidated += n
		return err
	}

	orchestrator := pipeline.NewOrchestrator(s.runs, s.config, sink)
	runs, err := orchestrator.Run(ctx, s.pipeline, files)
	res.Runs = runs
	log.Info().
		Int("files", res.Files).
		Int("runs", len(runs)).
		Int("invalidated", res.Invalidated).
		Msg("sales history import finished")
	return res, err
}

// store upserts one batch and invalidates the stats of every changed key.
// Batches are flushed one at a time so the seen map needs no lock.
func (s *IngestService) store(ctx context.Context, rows []pipeline.TransformedRow, seen map[domain.SKUKey]struct{}) (int, error) {
	sales := make([]domain.MonthlySales, 0, len(rows))
	reasons := make(map[domain.SKUKey]string)
	for _, row := range rows {
		m := row.Sales
		reason, err := s.changeReason(ctx, m)
		if err != nil {
			return 0, err
		}
		if reason == "" {
			continue
		}
		if _, ok := reasons[m.Key()]; !ok || reason == ReasonNewSalesMonth {
			reasons[m.Key()] = reason
		}
		sales = append(sales, m)
	}
	if len(sales) == 0 {
		return 0, nil
	}
	if err := s.sales.UpsertMonthlySales(ctx, sales); err != nil {
		return 0, fmt.Errorf("failed to upsert monthly sales: %w", err)
	}

	var n int
	for key, reason := range reasons {
		if err := s.stats.Invalidate(ctx, key, reason); err != nil {
			return n, err
		}
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			n++
		}
	}
	return n, nil
}

// changeReason classifies an incoming row against the stored month. Rows that
// change nothing return an empty reason.
func (s *IngestService) changeReason(ctx context.Context, row domain.MonthlySales) (string, error) {
	cur, err := s.sales.GetMonthlySales(ctx, row.Key(), row.Month)
	if errors.Is(err, domain.ErrNotFound) {
		return ReasonNewSalesMonth, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load monthly sales: %w", err)
	}
	switch {
	case cur.UnitsSold != row.UnitsSold:
		return ReasonNewSalesMonth, nil
	case cur.StockoutDays != row.StockoutDays:
		return ReasonStockoutCorrection, nil
	}
	return "", nil
}

func (s *IngestService) collect(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if s.pipeline.Validate(path) == nil {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// ListRuns returns the newest pipeline runs first
func (s *IngestService) ListRuns(ctx context.Context, limit int) ([]*pipeline.PipelineRun, error) {
	return s.runs.ListPipelineRuns(ctx, s.pipeline.Name(), limit)
}

// ListFileJobs returns the file jobs of a pipeline run
func (s *IngestService) ListFileJobs(ctx context.Context, runID int64) ([]*pipeline.FileJob, error) {
	return s.runs.GetFileJobsByRunID(ctx, runID)
}
