package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

// respondError maps domain errors to status codes and writes the error body
func respondError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidAdjustment):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrRunNotTerminal),
		errors.Is(err, domain.ErrRecommendationLocked):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrStorageDisabled):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg(message)
	}
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

// keyParam reads the :sku and :warehouse path params
func keyParam(c *gin.Context) domain.SKUKey {
	return domain.SKUKey{
		SKU:       strings.TrimSpace(c.Param("sku")),
		Warehouse: strings.ToLower(strings.TrimSpace(c.Param("warehouse"))),
	}
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

func parsePositiveIntWithDefault(value string, fallback int) int {
	if fallback <= 0 {
		fallback = 50
	}
	if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && v > 0 {
		return v
	}
	return fallback
}

// parseMonth accepts YYYY-MM or YYYY-MM-DD and returns the month start.
// An empty value returns the zero time.
func parseMonth(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return domain.MonthStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: month %q must be YYYY-MM", domain.ErrInvalidInput, value)
}

// parseDay accepts YYYY-MM-DD or RFC3339. An empty value returns the zero time.
func parseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", domain.ErrInvalidInput, value)
}

// splitQuery supports both repeated params and comma separated values
func splitQuery(c *gin.Context, name string) []string {
	var out []string
	for _, v := range c.QueryArray(name) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseBoolQuery(c *gin.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a boolean", domain.ErrInvalidInput, name)
	}
	return &v, nil
}
