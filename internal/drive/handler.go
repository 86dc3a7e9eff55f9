package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	source        Source
	ingestService *IngestService
}

func NewHandler(source Source, ingestService *IngestService) *Handler {
	return &Handler{
		source:        source,
		ingestService: ingestService,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/drive/files", h.ListFiles).Methods("GET")
	router.HandleFunc("/api/drive/files/download", h.DownloadFile).Methods("GET")
	router.HandleFunc("/api/drive/ingest", h.Ingest).Methods("POST")
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	folderID := query.Get("folderId")

	if path := query.Get("path"); path != "" {
		id, err := h.source.FindFolderByPath(r.Context(), path)
		if err != nil {
			writeError(w, err)
			return
		}
		folderID = id
	}

	files, err := h.source.ListFiles(r.Context(), folderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		http.Error(w, "fileId parameter is required", http.StatusBadRequest)
		return
	}

	f, err := h.source.GetFile(r.Context(), fileID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	if err := h.source.DownloadFile(r.Context(), fileID, w); err != nil {
		log.Error().Err(err).Str("file_id", fileID).Msg("drive download failed")
	}
}

// Ingest imports a single file when fileId is set, otherwise a whole folder
// given by folderId or path
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var (
		res interface{}
		err error
	)
	if fileID := query.Get("fileId"); fileID != "" {
		res, err = h.ingestService.IngestFile(r.Context(), fileID)
	} else {
		res, err = h.ingestService.IngestFolder(r.Context(), query.Get("folderId"), query.Get("path"))
	}
	if err != nil {
		log.Error().Err(err).Msg("drive ingest failed")
		writeError(w, fmt.Errorf("ingestion failed: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "result": res})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrFolderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrUnsupportedFile):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
