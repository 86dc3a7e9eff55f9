// backend-go/cmd/worker/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/andresuchdata/autopo-forecast/internal/app"
	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/drive"
	"github.com/andresuchdata/autopo-forecast/internal/jobs"
	"github.com/andresuchdata/autopo-forecast/internal/repository/postgres"
	"github.com/andresuchdata/autopo-forecast/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(cfg.App.LogLevel, cfg.App.LogFormat)

	// Initialize Database
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Services
	services, err := app.New(rootCtx, cfg, app.PostgresBackend(db))
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	services.Scheduler.Start(rootCtx)

	// Create router
	r := mux.NewRouter()
	jobs.NewHandler(services.Runner, services.Scheduler).RegisterRoutes(r)

	// Google Drive routes are only served with credentials
	if cfg.Drive.CredentialsJSON != "" {
		driveService, err := drive.NewService(rootCtx, cfg.Drive.CredentialsJSON)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to initialize Google Drive service")
		}
		ingestService := drive.NewIngestService(driveService, services.Ingest, cfg.App.DataDir, cfg.Drive.FolderPath)
		drive.NewHandler(driveService, ingestService).RegisterRoutes(r)
	} else {
		logger.Log.Warn().Msg("GOOGLE_CREDENTIALS_JSON not set, drive routes disabled")
	}

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.Server.WorkerPort,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.WorkerPort).Strs("tasks", services.Scheduler.Tasks()).Msg("Worker starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start worker")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down worker...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Worker forced to shutdown")
	}
	stop()
	services.Shutdown()
}
