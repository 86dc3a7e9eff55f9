// backend-go/internal/app/app.go
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/api"
	"github.com/andresuchdata/autopo-forecast/internal/cache"
	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/jobs"
	"github.com/andresuchdata/autopo-forecast/internal/pipeline"
	"github.com/andresuchdata/autopo-forecast/internal/pipeline/sales_history"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
	"github.com/andresuchdata/autopo-forecast/internal/repository/memory"
	"github.com/andresuchdata/autopo-forecast/internal/repository/postgres"
	"github.com/andresuchdata/autopo-forecast/internal/service"
	"github.com/andresuchdata/autopo-forecast/internal/storage"
)

// Backend is the persistence an App runs on
type Backend struct {
	Repos    repository.Repositories
	RunStore pipeline.RunStore
	// Memory is set when the backend is the in-process store
	Memory *memory.Store
}

// PostgresBackend wires every repository and the pipeline run store onto db
func PostgresBackend(db *postgres.DB) Backend {
	return Backend{
		Repos:    postgres.NewRepositories(db),
		RunStore: pipeline.NewRepository(db.DB.DB),
	}
}

// MemoryBackend keeps everything in process
func MemoryBackend() Backend {
	store := memory.NewStore()
	return Backend{
		Repos:    store.Repositories(),
		RunStore: pipeline.NewMemoryRunStore(),
		Memory:   store,
	}
}

// App holds the services shared by the server, the worker and the CLI
type App struct {
	Config    *config.Config
	Backend   Backend
	Storage   storage.ObjectStorage
	Runner    *jobs.Runner
	Scheduler *jobs.Scheduler

	Stats     *service.DemandStatsService
	Seasonal  *service.SeasonalService
	Growth    *service.GrowthService
	Forecasts *service.ForecastManager
	Learning  *service.LearningService
	Reorder   *service.ReorderService
	Ingest    *service.IngestService
}

// New builds the service graph. The caller owns ctx; cancelling it stops
// the job runner.
func New(ctx context.Context, cfg *config.Config, backend Backend) (*App, error) {
	fc := cfg.Forecast
	if len(fc.Warehouses) == 0 {
		return nil, fmt.Errorf("at least one warehouse must be configured")
	}

	statCache, err := cache.NewDemandStatCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("demand stat cache unavailable, continuing without it")
		statCache = cache.NewNoopDemandStatCache()
	}
	summaryCache, err := cache.NewAccuracySummaryCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("accuracy summary cache unavailable, continuing without it")
		summaryCache = cache.NewNoopAccuracySummaryCache()
	}

	archive, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise object storage: %w", err)
	}
	if archive == nil {
		log.Info().Msg("no storage provider configured, run archives are disabled")
	}

	repos := backend.Repos
	runner := jobs.NewRunner(ctx)

	stats := service.NewDemandStatsService(repos.Sales, repos.DemandStats, statCache, fc.Workers)
	seasonal := service.NewSeasonalService(repos.Sales, repos.Seasonal, fc.Workers)
	growth := service.NewGrowthService(repos.Catalog, repos.Sales, repos.Supply, seasonal)
	manager := service.NewForecastManager(repos, stats, seasonal, growth, archive, runner, fc.Warehouses)
	learning := service.NewLearningService(repos, stats, seasonal, growth, summaryCache, service.LearningOptionsFromConfig(fc))
	manager.AddObserver(learning)
	reorder := service.NewReorderService(repos, stats, manager, service.ReorderOptionsFromConfig(fc))

	pipelineCfg := pipeline.DefaultPipelineConfig(sales_history.Name)
	if fc.Workers > 0 {
		pipelineCfg.WorkerCount = fc.Workers
	}
	ingest := service.NewIngestService(repos.Sales, stats, backend.RunStore,
		sales_history.NewSalesHistoryPipeline(sales_history.Config{DefaultWarehouse: strings.ToLower(fc.Warehouses[0])}),
		pipelineCfg)

	scheduler := jobs.NewScheduler(runner)
	service.RegisterSchedules(scheduler, fc, stats, seasonal, learning)

	return &App{
		Config:    cfg,
		Backend:   backend,
		Storage:   archive,
		Runner:    runner,
		Scheduler: scheduler,
		Stats:     stats,
		Seasonal:  seasonal,
		Growth:    growth,
		Forecasts: manager,
		Learning:  learning,
		Reorder:   reorder,
		Ingest:    ingest,
	}, nil
}

// Recover settles runs left queued or running by a previous process
func (a *App) Recover(ctx context.Context) error {
	return a.Forecasts.Recover(ctx)
}

// APIServices exposes the app to the HTTP router
func (a *App) APIServices() api.Services {
	return api.Services{
		Stats:     a.Stats,
		Seasonal:  a.Seasonal,
		Growth:    a.Growth,
		Forecasts: a.Forecasts,
		Learning:  a.Learning,
		Reorder:   a.Reorder,
		Ingest:    a.Ingest,
		Runner:    a.Runner,
		Scheduler: a.Scheduler,
		UploadDir: a.Config.App.UploadDir,
	}
}

// Shutdown stops the scheduler and waits for in-flight jobs
func (a *App) Shutdown() {
	a.Scheduler.Stop()
	a.Runner.Shutdown()
}
