// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-forecast/internal/api/handlers"
	"github.com/andresuchdata/autopo-forecast/internal/api/middleware"
	"github.com/andresuchdata/autopo-forecast/internal/jobs"
	"github.com/andresuchdata/autopo-forecast/internal/service"
)

type Services struct {
	Stats     *service.DemandStatsService
	Seasonal  *service.SeasonalService
	Growth    *service.GrowthService
	Forecasts *service.ForecastManager
	Learning  *service.LearningService
	Reorder   *service.ReorderService
	Ingest    *service.IngestService
	Runner    *jobs.Runner
	Scheduler *jobs.Scheduler
	UploadDir string
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(cors.New(corsConfig(allowedOrigins)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")
	if services == nil {
		return router
	}

	var tasks handlers.TaskTrigger
	if services.Scheduler != nil {
		tasks = services.Scheduler
	}

	if services.Stats != nil && services.Seasonal != nil && services.Growth != nil {
		statsHandler := handlers.NewStatsHandler(services.Stats, services.Seasonal, services.Growth, tasks)
		statsGroup := apiGroup.Group("/stats")
		{
			statsGroup.POST("/recalculate", statsHandler.RecalculateDemandStats)
			statsGroup.GET("/:sku/:warehouse", statsHandler.GetDemandStat)
			statsGroup.POST("/:sku/:warehouse/invalidate", statsHandler.InvalidateDemandStat)
		}
		seasonalGroup := apiGroup.Group("/seasonal")
		{
			seasonalGroup.POST("/recalculate", statsHandler.RecalculateSeasonal)
			seasonalGroup.GET("/:sku/:warehouse", statsHandler.GetSeasonalProfile)
		}
		apiGroup.GET("/growth/:sku/:warehouse", statsHandler.ResolveGrowth)
	}

	if services.Forecasts != nil {
		forecastHandler := handlers.NewForecastHandler(services.Forecasts)
		runsGroup := apiGroup.Group("/forecast/runs")
		{
			runsGroup.POST("", forecastHandler.CreateRun)
			runsGroup.GET("", forecastHandler.ListRuns)
			runsGroup.GET("/:id", forecastHandler.GetRun)
			runsGroup.POST("/:id/cancel", forecastHandler.CancelRun)
			runsGroup.POST("/:id/archive", forecastHandler.ArchiveRun)
			runsGroup.GET("/:id/details", forecastHandler.ListDetails)
			runsGroup.GET("/:id/details/:sku/:warehouse", forecastHandler.GetDetail)
			runsGroup.POST("/:id/adjustments", forecastHandler.CreateAdjustment)
		}
	}

	if services.Learning != nil {
		learningHandler := handlers.NewLearningHandler(services.Learning, tasks)
		apiGroup.POST("/accuracy/actuals", learningHandler.RecordActuals)
		apiGroup.GET("/accuracy/summary", learningHandler.GetSummary)
		learningGroup := apiGroup.Group("/learning")
		{
			learningGroup.POST("/run", learningHandler.RunLearning)
			learningGroup.GET("/adjustments", learningHandler.ListAdjustments)
			learningGroup.POST("/adjustments/:id/apply", learningHandler.ApplyAdjustment)
		}
	}

	if services.Reorder != nil {
		reorderHandler := handlers.NewReorderHandler(services.Reorder)
		apiGroup.GET("/supply/:sku/:warehouse", reorderHandler.GetSupply)
		recGroup := apiGroup.Group("/recommendations")
		{
			recGroup.POST("/generate", reorderHandler.Generate)
			recGroup.GET("", reorderHandler.List)
			recGroup.PUT("/:id", reorderHandler.Update)
			recGroup.POST("/:id/lock", reorderHandler.Lock)
			recGroup.POST("/:id/unlock", reorderHandler.Unlock)
		}
	}

	if services.Runner != nil {
		jobsHandler := handlers.NewJobsHandler(services.Runner)
		jobsGroup := apiGroup.Group("/jobs")
		{
			jobsGroup.GET("", jobsHandler.List)
			jobsGroup.GET("/:id", jobsHandler.Get)
			jobsGroup.POST("/:id/cancel", jobsHandler.Cancel)
		}

		if services.Ingest != nil {
			importHandler := handlers.NewImportHandler(services.Ingest, services.Runner, services.UploadDir)
			importGroup := apiGroup.Group("/imports")
			{
				importGroup.POST("", importHandler.Upload)
				importGroup.GET("/runs", importHandler.ListRuns)
				importGroup.GET("/runs/:id/files", importHandler.ListFileJobs)
			}
		}
	}

	return router
}

func corsConfig(allowedOrigins []string) cors.Config {
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	cfg := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			cfg.AllowOrigins = nil
			cfg.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			cfg.AllowOrigins = normalizedOrigins
		}
	}
	return cfg
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
