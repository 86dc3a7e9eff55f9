package jobs

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Handler exposes the runner and scheduler over plain HTTP for the worker
type Handler struct {
	runner    *Runner
	scheduler *Scheduler
}

func NewHandler(runner *Runner, scheduler *Scheduler) *Handler {
	return &Handler{runner: runner, scheduler: scheduler}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/jobs", h.List).Methods("GET")
	router.HandleFunc("/jobs/tasks", h.Tasks).Methods("GET")
	router.HandleFunc("/jobs/tasks/{task}", h.Trigger).Methods("POST")
	router.HandleFunc("/jobs/{id}", h.Get).Methods("GET")
	router.HandleFunc("/jobs/{id}/cancel", h.Cancel).Methods("POST")
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runner.List())
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.runner.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.runner.Cancel(id) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	job, _ := h.runner.Get(id)
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, h.scheduler.Tasks())
}

// Trigger starts a scheduled task now. It answers 409 while the previous
// run is still going.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		http.Error(w, "no scheduled tasks", http.StatusNotFound)
		return
	}
	job, ok := h.scheduler.Trigger(mux.Vars(r)["task"])
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if job == nil {
		http.Error(w, "task already running", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
