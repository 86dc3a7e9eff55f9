// backend-go/internal/service/forecast_service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/forecast"
	"github.com/andresuchdata/autopo-forecast/internal/jobs"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
	"github.com/andresuchdata/autopo-forecast/internal/storage"
)

const (
	archivePrefix      = "forecast-archives/"
	interruptedReason  = "interrupted by restart"
	shutdownReason     = "interrupted by shutdown"
	progressFlushEvery = 50
	waitPollInterval   = 100 * time.Millisecond
)

// CreateRunRequest is the input of a new forecast run
type CreateRunRequest struct {
	Name           string     `json:"name"`
	ForecastStart  *time.Time `json:"forecast_start"`
	GrowthOverride *float64   `json:"growth_rate_override"`
	SKUs           []string   `json:"skus"`
	Warehouses     []string   `json:"warehouses"`
}

// AdjustmentRequest is a manual change to one forecast month
type AdjustmentRequest struct {
	RunID       int64   `json:"run_id"`
	SKU         string  `json:"sku"`
	Warehouse   string  `json:"warehouse"`
	MonthIndex  int     `json:"month_index"`
	AdjustedQty float64 `json:"adjusted_qty"`
	Reason      string  `json:"reason"`
	CreatedBy   string  `json:"created_by"`
}

// DetailView is a forecast detail with manual adjustments folded in
type DetailView struct {
	Detail      domain.ForecastDetail       `json:"detail"`
	Original    domain.QtyCells             `json:"original_monthly_qty,omitempty"`
	Adjustments []domain.ForecastAdjustment `json:"adjustments,omitempty"`
}

// RunObserver is notified after a run completes
type RunObserver interface {
	RunCompleted(ctx context.Context, run domain.ForecastRun) error
}

type archiveDocument struct {
	Run     domain.ForecastRun      `json:"run"`
	Details []domain.ForecastDetail `json:"details"`
	Errors  []domain.RunError       `json:"errors"`
}

// ForecastManager owns the run lifecycle: at most one run executes at a time
// and the rest wait in a FIFO queue ordered by queued_at.
type ForecastManager struct {
	forecasts  repository.ForecastRepository
	catalog    repository.CatalogRepository
	sales      repository.SalesRepository
	stats      *DemandStatsService
	seasonal   *SeasonalService
	growth     *GrowthService
	archive    storage.ObjectStorage
	runner     *jobs.Runner
	warehouses []string
	observers  []RunObserver
	now        func() time.Time

	mu      sync.Mutex
	current *int64
	jobs    map[int64]*jobs.Job
}

func NewForecastManager(
	repos repository.Repositories,
	stats *DemandStatsService,
	seasonalSvc *SeasonalService,
	growthSvc *GrowthService,
	archive storage.ObjectStorage,
	runner *jobs.Runner,
	warehouses []string,
) *ForecastManager {
	return &ForecastManager{
		forecasts:  repos.Forecasts,
		catalog:    repos.Catalog,
		sales:      repos.Sales,
		stats:      stats,
		seasonal:   seasonalSvc,
		growth:     growthSvc,
		archive:    archive,
		runner:     runner,
		warehouses: warehouses,
		now:        time.Now,
		jobs:       make(map[int64]*jobs.Job),
	}
}

// AddObserver registers a completion hook
func (m *ForecastManager) AddObserver(o RunObserver) {
	m.observers = append(m.observers, o)
}

// Recover fails runs left running by a previous process, queues runs that
// were created but never started, clears the running pointer and starts the
// head of the queue
func (m *ForecastManager) Recover(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.forecasts.ListRunsByStatus(ctx, domain.RunStatusPending)
	if err != nil {
		return fmt.Errorf("failed to list pending runs: %w", err)
	}
	for i := range pending {
		run := pending[i]
		if err := forecast.Transition(&run, domain.RunStatusQueued); err != nil {
			return err
		}
		queuedAt := run.CreatedAt
		run.QueuedAt = &queuedAt
		if err := m.forecasts.UpdateRun(ctx, &run); err != nil {
			return fmt.Errorf("failed to queue pending run %d: %w", run.ID, err)
		}
		log.Info().Int64("run_id", run.ID).Msg("pending forecast run queued on restart")
	}

	running, err := m.forecasts.ListRunsByStatus(ctx, domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to list running runs: %w", err)
	}
	for i := range running {
		run := running[i]
		if err := forecast.Transition(&run, domain.RunStatusFailed); err != nil {
			return err
		}
		now := m.now().UTC()
		run.CompletedAt = &now
		run.ErrorMessage = interruptedReason
		if err := m.forecasts.UpdateRun(ctx, &run); err != nil {
			return fmt.Errorf("failed to fail interrupted run %d: %w", run.ID, err)
		}
		log.Warn().Int64("run_id", run.ID).Msg("forecast run interrupted by restart marked failed")
	}

	if err := m.forecasts.SetRunningRunID(ctx, nil); err != nil {
		return fmt.Errorf("failed to clear running pointer: %w", err)
	}
	m.current = nil

	if err := m.repositionLocked(ctx); err != nil {
		return err
	}
	return m.startNextLocked(ctx)
}

// Submit creates a run and starts it, or queues it behind the running one
func (m *ForecastManager) Submit(ctx context.Context, req CreateRunRequest) (*domain.ForecastRun, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: run name is required", domain.ErrInvalidInput)
	}
	if req.GrowthOverride != nil && *req.GrowthOverride <= -1 {
		return nil, fmt.Errorf("%w: growth override must be greater than -1", domain.ErrInvalidInput)
	}

	now := m.now().UTC()
	start := domain.MonthStart(now).AddDate(0, 1, 0)
	if req.ForecastStart != nil {
		start = domain.MonthStart(*req.ForecastStart)
	}

	run := &domain.ForecastRun{
		Name:           name,
		Status:         domain.RunStatusPending,
		ForecastStart:  start,
		GrowthOverride: req.GrowthOverride,
		SKUFilter:      domain.StringList(req.SKUs),
		WarehouseList:  domain.StringList(lowerAll(req.Warehouses)),
		CreatedAt:      now,
	}
	if err := m.forecasts.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create forecast run: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil && !m.runner.Closing() {
		if err := m.startLocked(ctx, run); err != nil {
			return nil, err
		}
		return run, nil
	}

	if err := forecast.Transition(run, domain.RunStatusQueued); err != nil {
		return nil, err
	}
	run.QueuedAt = &now
	if err := m.forecasts.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to queue forecast run: %w", err)
	}
	if err := m.repositionLocked(ctx); err != nil {
		return nil, err
	}
	log.Info().Int64("run_id", run.ID).Msg("forecast run queued")
	return m.forecasts.GetRun(ctx, run.ID)
}

// Cancel cancels a pending or queued run immediately; a running run stops at
// the next SKU boundary
func (m *ForecastManager) Cancel(ctx context.Context, id int64) (*domain.ForecastRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.forecasts.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case domain.RunStatusPending, domain.RunStatusQueued:
		if err := forecast.Transition(run, domain.RunStatusCancelled); err != nil {
			return nil, err
		}
		now := m.now().UTC()
		run.CompletedAt = &now
		if err := m.forecasts.UpdateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to cancel forecast run: %w", err)
		}
		if err := m.repositionLocked(ctx); err != nil {
			return nil, err
		}
		return run, nil
	case domain.RunStatusRunning:
		if job, ok := m.jobs[id]; ok {
			job.Cancel()
			return run, nil
		}
		// no live job: nothing will observe the request, finish it here
		if err := m.finalize(ctx, run, domain.RunStatusCancelled, ""); err != nil {
			return nil, err
		}
		if err := m.releaseLocked(ctx, id); err != nil {
			return nil, err
		}
		return run, nil
	}
	return nil, fmt.Errorf("%w: run %d is already %s", domain.ErrInvalidTransition, id, run.Status)
}

// Wait blocks until the run reaches a terminal status and its completion
// hooks have finished
func (m *ForecastManager) Wait(ctx context.Context, id int64) (*domain.ForecastRun, error) {
	var waited *jobs.Job
	for {
		m.mu.Lock()
		job := m.jobs[id]
		m.mu.Unlock()
		if job != nil && job != waited {
			_ = job.Wait()
			waited = job
			continue
		}

		run, err := m.forecasts.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Status.Terminal() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitPollInterval):
		}
	}
}

func (m *ForecastManager) GetRun(ctx context.Context, id int64) (*domain.ForecastRun, error) {
	return m.forecasts.GetRun(ctx, id)
}

func (m *ForecastManager) ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.ForecastRun, int, error) {
	return m.forecasts.ListRuns(ctx, filter)
}

func (m *ForecastManager) ListRunErrors(ctx context.Context, id int64) ([]domain.RunError, error) {
	if _, err := m.forecasts.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return m.forecasts.ListRunErrors(ctx, id)
}

// ListDetails returns every detail of a run with adjustments applied
func (m *ForecastManager) ListDetails(ctx context.Context, runID int64) ([]domain.ForecastDetail, error) {
	if _, err := m.forecasts.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	details, err := m.forecasts.ListDetails(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecast details: %w", err)
	}
	for i, d := range details {
		if !d.ManualOverride {
			continue
		}
		view, err := m.effective(ctx, d)
		if err != nil {
			return nil, err
		}
		details[i] = view.Detail
	}
	return details, nil
}

// GetDetail returns one detail with adjustments applied and its audit trail
func (m *ForecastManager) GetDetail(ctx context.Context, runID int64, key domain.SKUKey) (*DetailView, error) {
	detail, err := m.forecasts.GetDetail(ctx, runID, key)
	if err != nil {
		return nil, err
	}
	view, err := m.effective(ctx, *detail)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (m *ForecastManager) effective(ctx context.Context, d domain.ForecastDetail) (DetailView, error) {
	view := DetailView{Detail: d}
	if !d.ManualOverride {
		return view, nil
	}
	adjustments, err := m.forecasts.ListAdjustments(ctx, d.RunID, d.Key())
	if err != nil {
		return view, fmt.Errorf("failed to list adjustments: %w", err)
	}
	sku, err := lookupSKU(ctx, m.catalog, d.SKU)
	if err != nil {
		return view, err
	}
	view.Detail = forecast.ApplyAdjustments(d, adjustments, sku.AvgSellingPrice)
	view.Original = d.MonthlyQty
	view.Adjustments = adjustments
	return view, nil
}

// Adjust records a manual change to one month of a completed run
func (m *ForecastManager) Adjust(ctx context.Context, req AdjustmentRequest) (*DetailView, error) {
	run, err := m.forecasts.GetRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusCompleted {
		return nil, fmt.Errorf("%w: run %d is %s, only completed runs can be adjusted", domain.ErrInvalidAdjustment, run.ID, run.Status)
	}
	if req.MonthIndex < 1 || req.MonthIndex > domain.ForecastMonths {
		return nil, fmt.Errorf("%w: month index %d is outside 1..%d", domain.ErrInvalidAdjustment, req.MonthIndex, domain.ForecastMonths)
	}
	if req.AdjustedQty < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", domain.ErrInvalidAdjustment)
	}

	key := domain.SKUKey{SKU: req.SKU, Warehouse: strings.ToLower(req.Warehouse)}
	detail, err := m.forecasts.GetDetail(ctx, run.ID, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: sku %s at %s is not part of run %d", domain.ErrInvalidAdjustment, key.SKU, key.Warehouse, run.ID)
	}
	if err != nil {
		return nil, err
	}

	current, err := m.effective(ctx, *detail)
	if err != nil {
		return nil, err
	}

	adj := &domain.ForecastAdjustment{
		RunID:       run.ID,
		SKU:         key.SKU,
		Warehouse:   key.Warehouse,
		MonthIndex:  req.MonthIndex,
		OriginalQty: current.Detail.MonthlyQty[req.MonthIndex-1],
		AdjustedQty: forecast.Round2(req.AdjustedQty),
		Reason:      req.Reason,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   m.now().UTC(),
	}
	if err := m.forecasts.CreateAdjustment(ctx, adj); err != nil {
		return nil, fmt.Errorf("failed to save adjustment: %w", err)
	}
	if err := m.forecasts.SetDetailOverride(ctx, run.ID, key, req.Reason); err != nil {
		return nil, fmt.Errorf("failed to flag detail override: %w", err)
	}

	return m.GetDetail(ctx, run.ID, key)
}

// Archive uploads a finished run's details to object storage
func (m *ForecastManager) Archive(ctx context.Context, id int64) (*domain.ForecastRun, error) {
	run, err := m.forecasts.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.Status.Terminal() {
		return nil, fmt.Errorf("%w: run %d is %s", domain.ErrRunNotTerminal, id, run.Status)
	}
	if run.Archived {
		return run, nil
	}
	if m.archive == nil {
		return nil, domain.ErrStorageDisabled
	}

	details, err := m.ListDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	runErrors, err := m.forecasts.ListRunErrors(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list run errors: %w", err)
	}

	payload, err := json.Marshal(archiveDocument{Run: *run, Details: details, Errors: runErrors})
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive: %w", err)
	}

	key := fmt.Sprintf("%s%d.json", archivePrefix, id)
	if err := m.archive.UploadObject(ctx, key, payload); err != nil {
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}

	run.Archived = true
	run.ArchiveKey = key
	if err := m.forecasts.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to mark run archived: %w", err)
	}
	log.Info().Int64("run_id", id).Str("key", key).Int("details", len(details)).Msg("forecast run archived")
	return run, nil
}

// startLocked must be called with m.mu held
func (m *ForecastManager) startLocked(ctx context.Context, run *domain.ForecastRun) error {
	if err := forecast.Transition(run, domain.RunStatusRunning); err != nil {
		return err
	}
	now := m.now().UTC()
	run.StartedAt = &now
	if err := m.forecasts.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to start forecast run: %w", err)
	}

	id := run.ID
	if err := m.forecasts.SetRunningRunID(ctx, &id); err != nil {
		return fmt.Errorf("failed to persist running run: %w", err)
	}
	m.current = &id

	m.jobs[id] = m.runner.Start(fmt.Sprintf("forecast-run-%d", id), func(jctx context.Context, job *jobs.Job) error {
		return m.execute(jctx, job, id)
	})
	log.Info().Int64("run_id", id).Str("name", run.Name).Msg("forecast run started")
	return nil
}

// startNextLocked leaves the queue alone once the runner is shutting down so
// Recover can resume it
func (m *ForecastManager) startNextLocked(ctx context.Context) error {
	if m.runner.Closing() {
		return nil
	}
	queued, err := m.forecasts.ListRunsByStatus(ctx, domain.RunStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to list queued runs: %w", err)
	}
	if len(queued) == 0 {
		return nil
	}
	next := queued[0]
	if err := m.startLocked(ctx, &next); err != nil {
		return err
	}
	return m.repositionLocked(ctx)
}

// repositionLocked renumbers the queue 1..n
func (m *ForecastManager) repositionLocked(ctx context.Context) error {
	queued, err := m.forecasts.ListRunsByStatus(ctx, domain.RunStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to list queued runs: %w", err)
	}
	for i := range queued {
		pos := i + 1
		if queued[i].QueuePosition != nil && *queued[i].QueuePosition == pos {
			continue
		}
		queued[i].QueuePosition = &pos
		if err := m.forecasts.UpdateRun(ctx, &queued[i]); err != nil {
			return fmt.Errorf("failed to update queue position: %w", err)
		}
	}
	return nil
}

func (m *ForecastManager) releaseLocked(ctx context.Context, id int64) error {
	delete(m.jobs, id)
	if m.current != nil && *m.current == id {
		m.current = nil
		if err := m.forecasts.SetRunningRunID(ctx, nil); err != nil {
			return fmt.Errorf("failed to clear running pointer: %w", err)
		}
	}
	return m.startNextLocked(ctx)
}

func (m *ForecastManager) execute(jctx context.Context, job *jobs.Job, id int64) error {
	// persistence must outlive a cancellation request
	ctx := context.WithoutCancel(jctx)
	logger := log.With().Int64("run_id", id).Logger()

	run, err := m.forecasts.GetRun(ctx, id)
	if err != nil {
		return m.complete(ctx, &domain.ForecastRun{ID: id, Status: domain.RunStatusRunning}, domain.RunStatusFailed, err.Error())
	}

	keys, err := m.targets(ctx, *run)
	if err != nil {
		return m.complete(ctx, run, domain.RunStatusFailed, err.Error())
	}
	run.TotalSKUs = len(keys)
	if err := m.forecasts.UpdateRun(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("failed to record run size")
	}

	status := domain.RunStatusCompleted
	for i, key := range keys {
		if job.Cancelled() {
			if m.runner.Closing() {
				return m.complete(ctx, run, domain.RunStatusFailed, shutdownReason)
			}
			status = domain.RunStatusCancelled
			break
		}
		if err := m.forecastKey(ctx, run, key); err != nil {
			run.FailedSKUs++
			logger.Warn().Err(err).Str("sku", key.SKU).Str("warehouse", key.Warehouse).Msg("forecast failed for sku")
			runErr := &domain.RunError{RunID: id, SKU: key.SKU, Warehouse: key.Warehouse, Message: err.Error(), CreatedAt: m.now().UTC()}
			if rerr := m.forecasts.RecordRunError(ctx, runErr); rerr != nil {
				logger.Error().Err(rerr).Msg("failed to record run error")
			}
		} else {
			run.ProcessedSKUs++
		}
		job.ReportProgress(i+1, len(keys), key.String())
		if (i+1)%progressFlushEvery == 0 {
			if err := m.forecasts.UpdateRun(ctx, run); err != nil {
				logger.Warn().Err(err).Msg("failed to record run progress")
			}
		}
	}

	return m.complete(ctx, run, status, "")
}

// complete finalizes the run, notifies observers and hands the slot to the
// next queued run
func (m *ForecastManager) complete(ctx context.Context, run *domain.ForecastRun, status domain.RunStatus, msg string) error {
	err := m.finalize(ctx, run, status, msg)

	if err == nil && status == domain.RunStatusCompleted {
		for _, o := range m.observers {
			if oerr := o.RunCompleted(ctx, *run); oerr != nil {
				log.Error().Err(oerr).Int64("run_id", run.ID).Msg("run completion hook failed")
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rerr := m.releaseLocked(ctx, run.ID); rerr != nil {
		log.Error().Err(rerr).Int64("run_id", run.ID).Msg("failed to start next queued run")
	}
	if err != nil {
		return err
	}
	if status == domain.RunStatusFailed {
		return errors.New(msg)
	}
	return nil
}

func (m *ForecastManager) finalize(ctx context.Context, run *domain.ForecastRun, status domain.RunStatus, msg string) error {
	if err := forecast.Transition(run, status); err != nil {
		return err
	}
	now := m.now().UTC()
	run.CompletedAt = &now
	run.ErrorMessage = msg
	if err := m.forecasts.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to finalize forecast run: %w", err)
	}
	log.Info().
		Int64("run_id", run.ID).
		Str("status", string(status)).
		Int("processed", run.ProcessedSKUs).
		Int("failed", run.FailedSKUs).
		Msg("forecast run finished")
	return nil
}

func (m *ForecastManager) forecastKey(ctx context.Context, run *domain.ForecastRun, key domain.SKUKey) error {
	sku, err := lookupSKU(ctx, m.catalog, key.SKU)
	if err != nil {
		return fmt.Errorf("failed to load sku: %w", err)
	}
	stat, err := m.stats.Get(ctx, key)
	if err != nil {
		return err
	}
	profile, err := m.seasonal.Profile(ctx, key)
	if err != nil {
		return err
	}
	rate, err := m.growth.resolve(ctx, key, sku, profile, run.GrowthOverride)
	if err != nil {
		return err
	}

	detail := forecast.Generate(forecast.Input{
		RunID:           run.ID,
		Key:             key,
		Start:           run.ForecastStart,
		Stat:            *stat,
		Profile:         profile,
		Growth:          rate,
		AvgSellingPrice: sku.AvgSellingPrice,
		Now:             m.now().UTC(),
	})
	if err := m.forecasts.SaveDetail(ctx, &detail); err != nil {
		return fmt.Errorf("failed to save forecast detail: %w", err)
	}
	return nil
}

// targets lists the keys a run covers
func (m *ForecastManager) targets(ctx context.Context, run domain.ForecastRun) ([]domain.SKUKey, error) {
	warehouses := []string(run.WarehouseList)
	if len(warehouses) == 0 {
		warehouses = m.warehouses
	}
	return planningKeys(ctx, m.catalog, m.sales, warehouses, run.SKUFilter)
}
