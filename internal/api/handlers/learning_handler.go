package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-forecast/internal/cache"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/service"
)

type LearningHandler struct {
	learning *service.LearningService
	tasks    TaskTrigger
}

func NewLearningHandler(learning *service.LearningService, tasks TaskTrigger) *LearningHandler {
	return &LearningHandler{learning: learning, tasks: tasks}
}

type actualsRequest struct {
	AsOf string `json:"as_of"`
}

// RecordActuals fills in actuals for every forecast period that closed
// before as_of (default now)
func (h *LearningHandler) RecordActuals(c *gin.Context) {
	var req actualsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	asOf, err := parseDay(req.AsOf)
	if err != nil {
		respondError(c, err, "invalid as_of date")
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	recorded, err := h.learning.RecordActuals(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, err, "failed to record actuals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": recorded, "as_of": asOf})
}

// GetSummary returns MAPE and bias per key. sku may repeat or hold a comma
// separated list. Stockout-affected periods are excluded unless
// include_stockout=true.
func (h *LearningHandler) GetSummary(c *gin.Context) {
	filter := cache.AccuracyFilter{
		IncludeStockout: strings.EqualFold(c.Query("include_stockout"), "true"),
	}
	if skus := splitQuery(c, "sku"); len(skus) > 0 {
		warehouse := strings.ToLower(strings.TrimSpace(c.Query("warehouse")))
		if warehouse == "" {
			badRequest(c, "warehouse is required with sku")
			return
		}
		for _, sku := range skus {
			filter.Keys = append(filter.Keys, domain.SKUKey{SKU: sku, Warehouse: warehouse})
		}
	}

	summaries, err := h.learning.Summary(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "failed to fetch accuracy summary")
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// RunLearning analyses evaluated keys inline. With async=true it runs the
// full scheduled pass as a background job instead.
func (h *LearningHandler) RunLearning(c *gin.Context) {
	if strings.EqualFold(c.Query("async"), "true") && triggerTask(c, h.tasks, service.TaskLearning) {
		return
	}
	res, err := h.learning.Analyze(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to run learning analysis")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *LearningHandler) ListAdjustments(c *gin.Context) {
	applied, err := parseBoolQuery(c, "applied")
	if err != nil {
		respondError(c, err, "invalid applied filter")
		return
	}
	adjustments, err := h.learning.ListAdjustments(c.Request.Context(), applied)
	if err != nil {
		respondError(c, err, "failed to fetch learning adjustments")
		return
	}
	c.JSON(http.StatusOK, adjustments)
}

func (h *LearningHandler) ApplyAdjustment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	adj, err := h.learning.Apply(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to apply learning adjustment")
		return
	}
	c.JSON(http.StatusOK, adj)
}
