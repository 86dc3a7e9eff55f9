package handlers

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/jobs"
	"github.com/andresuchdata/autopo-forecast/internal/service"
)

const TaskSalesImport = "sales-import"

type ImportHandler struct {
	ingest    *service.IngestService
	runner    *jobs.Runner
	uploadDir string
}

func NewImportHandler(ingest *service.IngestService, runner *jobs.Runner, uploadDir string) *ImportHandler {
	return &ImportHandler{ingest: ingest, runner: runner, uploadDir: uploadDir}
}

// Upload stores sales history files and imports them in the background
func (h *ImportHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "invalid form data")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		badRequest(c, "no files provided")
		return
	}

	dir := filepath.Join(h.uploadDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		respondError(c, err, "failed to prepare upload dir")
		return
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		path := filepath.Join(dir, filepath.Base(file.Filename))
		if err := c.SaveUploadedFile(file, path); err != nil {
			log.Error().Err(err).Str("filename", file.Filename).Msg("failed to save uploaded file")
			continue
		}
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		badRequest(c, "no valid files to process")
		return
	}

	job := h.runner.Start(TaskSalesImport, func(ctx context.Context, job *jobs.Job) error {
		defer os.RemoveAll(dir)
		res, err := h.ingest.Import(ctx, paths)
		job.ReportProgress(len(res.Runs), len(res.Runs), strconv.Itoa(res.Invalidated)+" demand stats invalidated")
		return err
	})

	c.JSON(http.StatusAccepted, gin.H{
		"message": "files are being processed",
		"count":   len(paths),
		"job":     job.Snapshot(),
	})
}

func (h *ImportHandler) ListRuns(c *gin.Context) {
	runs, err := h.ingest.ListRuns(c.Request.Context(), parsePositiveIntWithDefault(c.Query("limit"), 20))
	if err != nil {
		respondError(c, err, "failed to fetch import runs")
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *ImportHandler) ListFileJobs(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	files, err := h.ingest.ListFileJobs(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to fetch import files")
		return
	}
	c.JSON(http.StatusOK, files)
}

type JobsHandler struct {
	runner *jobs.Runner
}

func NewJobsHandler(runner *jobs.Runner) *JobsHandler {
	return &JobsHandler{runner: runner}
}

func (h *JobsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.runner.List())
}

func (h *JobsHandler) Get(c *gin.Context) {
	job, ok := h.runner.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job.Snapshot())
}

func (h *JobsHandler) Cancel(c *gin.Context) {
	if !h.runner.Cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": c.Param("id"), "message": "cancellation requested"})
}
