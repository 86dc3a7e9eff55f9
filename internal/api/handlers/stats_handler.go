package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/jobs"
	"github.com/andresuchdata/autopo-forecast/internal/service"
)

// TaskTrigger starts a registered periodic task on demand
type TaskTrigger interface {
	Trigger(name string) (*jobs.Job, bool)
}

type StatsHandler struct {
	stats    *service.DemandStatsService
	seasonal *service.SeasonalService
	growth   *service.GrowthService
	tasks    TaskTrigger
}

func NewStatsHandler(stats *service.DemandStatsService, seasonal *service.SeasonalService, growth *service.GrowthService, tasks TaskTrigger) *StatsHandler {
	return &StatsHandler{stats: stats, seasonal: seasonal, growth: growth, tasks: tasks}
}

type recalculateRequest struct {
	Keys []domain.SKUKey `json:"keys"`
}

type invalidateRequest struct {
	Reason string `json:"reason"`
}

// GetDemandStat returns the cached demand stat, computing it on a miss
func (h *StatsHandler) GetDemandStat(c *gin.Context) {
	stat, err := h.stats.Get(c.Request.Context(), keyParam(c))
	if err != nil {
		respondError(c, err, "failed to fetch demand stats")
		return
	}
	c.JSON(http.StatusOK, stat)
}

// RecalculateDemandStats recomputes the listed keys inline, or every key as
// a background job when the body names none
func (h *StatsHandler) RecalculateDemandStats(c *gin.Context) {
	var req recalculateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	if len(req.Keys) > 0 {
		res, err := h.stats.RecalculateKeys(c.Request.Context(), normalizeKeys(req.Keys), nil)
		if err != nil {
			respondError(c, err, "failed to recalculate demand stats")
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	if triggerTask(c, h.tasks, service.TaskDemandStats) {
		return
	}
	res, err := h.stats.RecalculateAll(c.Request.Context(), nil)
	if err != nil {
		respondError(c, err, "failed to recalculate demand stats")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *StatsHandler) InvalidateDemandStat(c *gin.Context) {
	var req invalidateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = service.ReasonManual
	}

	key := keyParam(c)
	if err := h.stats.Invalidate(c.Request.Context(), key, reason); err != nil {
		respondError(c, err, "failed to invalidate demand stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": key.SKU, "warehouse": key.Warehouse, "reason": reason})
}

func (h *StatsHandler) GetSeasonalProfile(c *gin.Context) {
	profile, err := h.seasonal.Profile(c.Request.Context(), keyParam(c))
	if err != nil {
		respondError(c, err, "failed to fetch seasonal factors")
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *StatsHandler) RecalculateSeasonal(c *gin.Context) {
	var req recalculateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	if len(req.Keys) > 0 {
		profiles := make([]domain.SeasonalProfile, 0, len(req.Keys))
		for _, key := range normalizeKeys(req.Keys) {
			profile, err := h.seasonal.Recalculate(c.Request.Context(), key)
			if err != nil {
				respondError(c, err, "failed to recalculate seasonal factors")
				return
			}
			profiles = append(profiles, profile)
		}
		c.JSON(http.StatusOK, profiles)
		return
	}

	if triggerTask(c, h.tasks, service.TaskSeasonal) {
		return
	}
	res, err := h.seasonal.RecalculateAll(c.Request.Context(), nil)
	if err != nil {
		respondError(c, err, "failed to recalculate seasonal factors")
		return
	}
	c.JSON(http.StatusOK, res)
}

// ResolveGrowth explains which growth rate a forecast would use. The
// optional override query param simulates a run-level override.
func (h *StatsHandler) ResolveGrowth(c *gin.Context) {
	var override *float64
	if raw := strings.TrimSpace(c.Query("override")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			badRequest(c, "override must be a number")
			return
		}
		override = &v
	}

	rate, err := h.growth.Resolve(c.Request.Context(), keyParam(c), override)
	if err != nil {
		respondError(c, err, "failed to resolve growth rate")
		return
	}
	c.JSON(http.StatusOK, rate)
}

func normalizeKeys(keys []domain.SKUKey) []domain.SKUKey {
	out := make([]domain.SKUKey, 0, len(keys))
	for _, k := range keys {
		k.SKU = strings.TrimSpace(k.SKU)
		k.Warehouse = strings.ToLower(strings.TrimSpace(k.Warehouse))
		if k.SKU != "" && k.Warehouse != "" {
			out = append(out, k)
		}
	}
	return out
}

// triggerTask starts a scheduled task and writes the response. It returns
// false when no scheduler is wired so the caller can run inline.
func triggerTask(c *gin.Context, tasks TaskTrigger, name string) bool {
	if tasks == nil {
		return false
	}
	job, ok := tasks.Trigger(name)
	switch {
	case !ok:
		return false
	case job == nil:
		c.JSON(http.StatusConflict, gin.H{"error": "task is already running", "task": name})
	default:
		c.JSON(http.StatusAccepted, job.Snapshot())
	}
	return true
}
