// backend-go/cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-forecast/internal/api"
	"github.com/andresuchdata/autopo-forecast/internal/app"
	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/repository/postgres"
	"github.com/andresuchdata/autopo-forecast/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.Init(cfg.App.LogLevel, cfg.App.LogFormat)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := postgres.Migrate(context.Background(), db.DB.DB); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	// Initialize services
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	services, err := app.New(rootCtx, cfg, app.PostgresBackend(db))
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	if err := services.Recover(rootCtx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to recover forecast runs")
	}

	// Initialize HTTP server
	apiServices := services.APIServices()
	router := api.NewRouter(&apiServices, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	// The server has 5 seconds to finish the requests it is handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stop()
	services.Shutdown()

	logger.Log.Info().Msg("Server exiting")
}
