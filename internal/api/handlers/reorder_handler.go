package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/service"
)

type ReorderHandler struct {
	reorder *service.ReorderService
}

func NewReorderHandler(reorder *service.ReorderService) *ReorderHandler {
	return &ReorderHandler{reorder: reorder}
}

type generateRequest struct {
	OrderMonth string   `json:"order_month"`
	Warehouses []string `json:"warehouses"`
	SKUs       []string `json:"skus"`
}

type editRequest struct {
	ConfirmedQty     *float64 `json:"confirmed_qty"`
	LeadTimeOverride *int     `json:"lead_time_days_override"`
	ArrivalOverride  string   `json:"expected_arrival_override"`
}

type lockRequest struct {
	User string `json:"user"`
}

func (h *ReorderHandler) parseFilter(c *gin.Context) (domain.RecommendationFilter, error) {
	filter := domain.RecommendationFilter{
		Page:      parsePositiveIntWithDefault(c.Query("page"), 1),
		PageSize:  parsePositiveIntWithDefault(c.Query("page_size"), 50),
		Warehouse: strings.TrimSpace(c.Query("warehouse")),
		Urgency:   domain.Urgency(strings.ToLower(strings.TrimSpace(c.Query("urgency")))),
	}
	month, err := parseMonth(c.Query("order_month"))
	if err != nil {
		return filter, err
	}
	filter.OrderMonth = month
	return filter, nil
}

func (h *ReorderHandler) Generate(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	month, err := parseMonth(req.OrderMonth)
	if err != nil {
		respondError(c, err, "invalid order month")
		return
	}

	res, err := h.reorder.Generate(c.Request.Context(), service.GenerateRequest{
		OrderMonth: month,
		Warehouses: req.Warehouses,
		SKUs:       req.SKUs,
	})
	if err != nil {
		respondError(c, err, "failed to generate recommendations")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReorderHandler) List(c *gin.Context) {
	filter, err := h.parseFilter(c)
	if err != nil {
		respondError(c, err, "invalid filter")
		return
	}
	recs, total, err := h.reorder.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "failed to fetch recommendations")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      recs,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

func (h *ReorderHandler) Update(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	edit := domain.RecommendationEdit{
		ConfirmedQty:     req.ConfirmedQty,
		LeadTimeOverride: req.LeadTimeOverride,
	}
	arrival, err := parseDay(req.ArrivalOverride)
	if err != nil {
		respondError(c, err, "invalid arrival override")
		return
	}
	if !arrival.IsZero() {
		edit.ArrivalOverride = &arrival
	}

	rec, err := h.reorder.Update(c.Request.Context(), id, edit)
	if err != nil {
		respondError(c, err, "failed to update recommendation")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ReorderHandler) Lock(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req lockRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	rec, err := h.reorder.Lock(c.Request.Context(), id, strings.TrimSpace(req.User))
	if err != nil {
		respondError(c, err, "failed to lock recommendation")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ReorderHandler) Unlock(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	rec, err := h.reorder.Unlock(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "failed to unlock recommendation")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetSupply returns the bucketed pending supply of a key as of the as_of
// date, default today
func (h *ReorderHandler) GetSupply(c *gin.Context) {
	asOf, err := parseDay(c.Query("as_of"))
	if err != nil {
		respondError(c, err, "invalid as_of date")
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	res, err := h.reorder.SupplyView(c.Request.Context(), keyParam(c), asOf)
	if err != nil {
		respondError(c, err, "failed to fetch pending supply")
		return
	}
	c.JSON(http.StatusOK, res)
}
