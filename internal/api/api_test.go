package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/jobs"
	"github.com/andresuchdata/autopo-forecast/internal/repository/memory"
	"github.com/andresuchdata/autopo-forecast/internal/service"
)

type testServer struct {
	router  *gin.Engine
	store   *memory.Store
	manager *service.ForecastManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	repos := store.Repositories()
	stats := service.NewDemandStatsService(repos.Sales, repos.DemandStats, nil, 2)
	seasonal := service.NewSeasonalService(repos.Sales, repos.Seasonal, 2)
	growth := service.NewGrowthService(repos.Catalog, repos.Sales, repos.Supply, seasonal)

	runner := jobs.NewRunner(context.Background())
	t.Cleanup(runner.Shutdown)

	warehouses := []string{"kentucky"}
	manager := service.NewForecastManager(repos, stats, seasonal, growth, nil, runner, warehouses)
	learning := service.NewLearningService(repos, stats, seasonal, growth, nil, service.LearningOptions{})
	reorder := service.NewReorderService(repos, stats, manager, service.ReorderOptions{Warehouses: warehouses, Workers: 2})

	router := NewRouter(&Services{
		Stats:     stats,
		Seasonal:  seasonal,
		Growth:    growth,
		Forecasts: manager,
		Learning:  learning,
		Reorder:   reorder,
		Runner:    runner,
	}, []string{"http://planner.local"})

	rows := make([]domain.MonthlySales, 0, 12)
	for i := 1; i <= 12; i++ {
		rows = append(rows, domain.MonthlySales{
			SKU:       "MUG-01",
			Warehouse: "kentucky",
			Month:     time.Date(2023, time.Month(i), 1, 0, 0, 0, 0, time.UTC),
			UnitsSold: 90,
		})
	}
	require.NoError(t, store.UpsertMonthlySales(context.Background(), rows))

	return &testServer{router: router, store: store, manager: manager}
}

func (s *testServer) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthAndCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://planner.local")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://planner.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestStatsRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/stats/MUG-01/Kentucky", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stat domain.DemandStat
	decode(t, rec, &stat)
	assert.Equal(t, "kentucky", stat.Warehouse)
	assert.Equal(t, 90.0, stat.Demand3MoWeighted)

	rec = s.do(http.MethodPost, "/api/v1/stats/MUG-01/kentucky/invalidate", map[string]string{"reason": "recount"})
	assert.Equal(t, http.StatusOK, rec.Code)
	stored, err := s.store.GetDemandStat(context.Background(), domain.SKUKey{SKU: "MUG-01", Warehouse: "kentucky"})
	require.NoError(t, err)
	assert.False(t, stored.IsValid)
	assert.Equal(t, "recount", stored.InvalidationReason)

	rec = s.do(http.MethodPost, "/api/v1/stats/recalculate", map[string]interface{}{
		"keys": []map[string]string{{"sku": "MUG-01", "warehouse": "KENTUCKY"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var batch service.BatchResult
	decode(t, rec, &batch)
	assert.Equal(t, 1, batch.Succeeded)

	rec = s.do(http.MethodGet, "/api/v1/growth/MUG-01/kentucky?override=0.2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rate domain.GrowthRate
	decode(t, rec, &rate)
	assert.InDelta(t, 0.2, rate.Rate, 1e-9)

	rec = s.do(http.MethodGet, "/api/v1/growth/MUG-01/kentucky?override=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecastRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/v1/forecast/runs", map[string]interface{}{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/forecast/runs", map[string]interface{}{"name": "plan", "forecast_start": "2024-13"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/forecast/runs", map[string]interface{}{"name": "plan", "forecast_start": "2024-01"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var run domain.ForecastRun
	decode(t, rec, &run)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done, err := s.manager.Wait(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusCompleted, done.Status)

	rec = s.do(http.MethodGet, "/api/v1/forecast/runs?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data  []domain.ForecastRun `json:"data"`
		Total int                  `json:"total"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Total)

	rec = s.do(http.MethodGet, "/api/v1/forecast/runs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/forecast/runs/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/forecast/runs/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/v1/forecast/runs/" + jsonNumber(run.ID)
	rec = s.do(http.MethodGet, path+"/details/MUG-01/kentucky", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, path+"/adjustments", map[string]interface{}{
		"sku": "MUG-01", "warehouse": "kentucky", "month_index": 13, "adjusted_qty": 10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, path+"/adjustments", map[string]interface{}{
		"sku": "MUG-01", "warehouse": "kentucky", "month_index": 1, "adjusted_qty": 100, "reason": "promo",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodPost, path+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, path+"/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecommendationRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/v1/recommendations/generate", map[string]interface{}{"order_month": "2024-03"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/v1/recommendations?order_month=2024-03&warehouse=Kentucky", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data  []domain.OrderRecommendation `json:"data"`
		Total int                          `json:"total"`
	}
	decode(t, rec, &list)
	require.Equal(t, 1, list.Total)
	path := "/api/v1/recommendations/" + jsonNumber(list.Data[0].ID)

	rec = s.do(http.MethodPut, path, map[string]interface{}{"confirmed_qty": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, path+"/lock", map[string]string{"user": "planner"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPut, path, map[string]interface{}{"confirmed_qty": 10})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, path+"/unlock", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPut, path, map[string]interface{}{"confirmed_qty": 10})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/supply/MUG-01/kentucky?as_of=2024-03-01", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/recommendations?order_month=march", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLearningRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/v1/accuracy/actuals", map[string]string{"as_of": "2024-07-01"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/accuracy/summary", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/accuracy/summary?sku=MUG-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/learning/run", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/learning/adjustments?applied=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/learning/adjustments/42/apply", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/jobs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
