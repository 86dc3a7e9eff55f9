package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRoutes(t *testing.T) {
	r := NewRunner(context.Background())
	defer r.Shutdown()

	release := make(chan struct{})
	s := NewScheduler(r)
	s.Every("stats", time.Hour, func(ctx context.Context, j *Job) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	router := mux.NewRouter()
	NewHandler(r, s).RegisterRoutes(router)

	do := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	rec := do(http.MethodGet, "/jobs/tasks")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["stats"]`, rec.Body.String())

	rec = do(http.MethodPost, "/jobs/tasks/stats")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "stats", snap.Name)
	assert.Equal(t, StatusRunning, snap.Status)

	assert.Equal(t, http.StatusConflict, do(http.MethodPost, "/jobs/tasks/stats").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/jobs/tasks/unknown").Code)

	rec = do(http.MethodGet, "/jobs/"+snap.ID)
	assert.Equal(t, http.StatusOK, rec.Code)

	var list []Snapshot
	rec = do(http.MethodGet, "/jobs")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	close(release)
	job, _ := r.Get(snap.ID)
	require.NoError(t, job.Wait())

	assert.Equal(t, http.StatusNotFound, do(http.MethodGet, "/jobs/missing").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/jobs/missing/cancel").Code)
	assert.Equal(t, http.StatusAccepted, do(http.MethodPost, "/jobs/"+snap.ID+"/cancel").Code)
}
