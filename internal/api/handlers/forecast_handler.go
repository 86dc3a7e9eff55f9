package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/service"
)

type ForecastHandler struct {
	manager *service.ForecastManager
}

func NewForecastHandler(manager *service.ForecastManager) *ForecastHandler {
	return &ForecastHandler{manager: manager}
}

type createRunRequest struct {
	Name           string   `json:"name"`
	ForecastStart  string   `json:"forecast_start"`
	GrowthOverride *float64 `json:"growth_rate_override"`
	SKUs           []string `json:"skus"`
	Warehouses     []string `json:"warehouses"`
}

type adjustmentRequest struct {
	SKU         string  `json:"sku"`
	Warehouse   string  `json:"warehouse"`
	MonthIndex  int     `json:"month_index"`
	AdjustedQty float64 `json:"adjusted_qty"`
	Reason      string  `json:"reason"`
	CreatedBy   string  `json:"created_by"`
}

// CreateRun submits a run; it starts at once or waits in the queue
func (h *ForecastHandler) CreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	start, err := parseMonth(req.ForecastStart)
	if err != nil {
		respondError(c, err, "invalid forecast start")
		return
	}

	create := service.CreateRunRequest{
		Name:           req.Name,
		GrowthOverride: req.GrowthOverride,
		SKUs:           req.SKUs,
		Warehouses:     req.Warehouses,
	}
	if !start.IsZero() {
		create.ForecastStart = &start
	}

	run, err := h.manager.Submit(c.Request.Context(), create)
	if err != nil {
		respondError(c, err, "failed to create forecast run")
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (h *ForecastHandler) ListRuns(c *gin.Context) {
	filter := domain.RunFilter{
		Page:            parsePositiveIntWithDefault(c.Query("page"), 1),
		PageSize:        parsePositiveIntWithDefault(c.Query("page_size"), 50),
		IncludeArchived: strings.EqualFold(c.Query("include_archived"), "true"),
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := domain.ParseRunStatus(raw)
		if !ok {
			badRequest(c, "invalid status value")
			return
		}
		filter.Status = status
	}

	runs, total, err := h.manager.ListRuns(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "failed to fetch forecast runs")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      runs,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// GetRun returns the run with its per-SKU errors
func (h *ForecastHandler) GetRun(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	run, err := h.manager.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to fetch forecast run")
		return
	}
	runErrors, err := h.manager.ListRunErrors(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to fetch forecast run errors")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run":          run,
		"status_label": run.Status.Label(),
		"errors":       runErrors,
	})
}

func (h *ForecastHandler) CancelRun(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	run, err := h.manager.Cancel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to cancel forecast run")
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *ForecastHandler) ArchiveRun(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	run, err := h.manager.Archive(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to archive forecast run")
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListDetails returns the effective details of a run, adjustments applied
func (h *ForecastHandler) ListDetails(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	details, err := h.manager.ListDetails(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to fetch forecast details")
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *ForecastHandler) GetDetail(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	view, err := h.manager.GetDetail(c.Request.Context(), id, keyParam(c))
	if err != nil {
		respondError(c, err, "failed to fetch forecast detail")
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ForecastHandler) CreateAdjustment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	view, err := h.manager.Adjust(c.Request.Context(), service.AdjustmentRequest{
		RunID:       id,
		SKU:         strings.TrimSpace(req.SKU),
		Warehouse:   strings.ToLower(strings.TrimSpace(req.Warehouse)),
		MonthIndex:  req.MonthIndex,
		AdjustedQty: req.AdjustedQty,
		Reason:      req.Reason,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		respondError(c, err, "failed to adjust forecast")
		return
	}
	c.JSON(http.StatusCreated, view)
}
