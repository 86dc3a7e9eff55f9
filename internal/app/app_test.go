package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/service"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{UploadDir: "uploads"},
		Forecast: config.ForecastConfig{
			Warehouses:          []string{"kentucky", "burnaby"},
			Workers:             2,
			StatsInterval:       time.Hour,
			LearningInterval:    time.Hour,
			DefaultLeadTimeDays: 60,
			ReviewPeriodDays:    30,
			PlanningHorizonDays: 120,
			ForecastBlendWeight: 0.5,
		},
	}
}

func TestNewMemoryApp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, testConfig(), MemoryBackend())
	require.NoError(t, err)
	defer a.Shutdown()

	assert.NotNil(t, a.Backend.Memory)
	assert.Nil(t, a.Storage)
	assert.ElementsMatch(t,
		[]string{service.TaskDemandStats, service.TaskSeasonal, service.TaskLearning},
		a.Scheduler.Tasks())
	require.NoError(t, a.Recover(ctx))

	services := a.APIServices()
	assert.Equal(t, "uploads", services.UploadDir)
	assert.Same(t, a.Reorder, services.Reorder)
}

func TestNewRequiresWarehouse(t *testing.T) {
	cfg := testConfig()
	cfg.Forecast.Warehouses = nil
	_, err := New(context.Background(), cfg, MemoryBackend())
	assert.Error(t, err)
}

func TestNewLocalArchive(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Provider = "local"
	cfg.Storage.LocalDir = t.TempDir()

	a, err := New(context.Background(), cfg, MemoryBackend())
	require.NoError(t, err)
	defer a.Shutdown()
	assert.NotNil(t, a.Storage)
}
