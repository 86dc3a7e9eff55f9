package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

func TestBuildRunFilterClause(t *testing.T) {
	clause, args := buildRunFilterClause(domain.RunFilter{Status: domain.RunStatusQueued}, "r", 1)
	assert.Equal(t, " WHERE r.status = $1 AND r.archived = FALSE", clause)
	assert.Equal(t, []interface{}{domain.RunStatusQueued}, args)

	clause, args = buildRunFilterClause(domain.RunFilter{IncludeArchived: true}, "", 1)
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

func TestBuildRecommendationFilterClause(t *testing.T) {
	filter := domain.RecommendationFilter{
		OrderMonth: time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC),
		Warehouse:  "JKT",
		Urgency:    domain.UrgencyMustOrder,
	}
	clause, args := buildRecommendationFilterClause(filter, "o.", 3)

	assert.Equal(t, " WHERE o.order_month = $3 AND o.warehouse = $4 AND o.urgency_level = $5", clause)
	assert.Equal(t, []interface{}{
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		"JKT",
		domain.UrgencyMustOrder,
	}, args)
}

func TestPageBounds(t *testing.T) {
	_, _, unlimited := pageBounds(1, 0)
	assert.True(t, unlimited)

	limit, offset, unlimited := pageBounds(3, 20)
	assert.False(t, unlimited)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 40, offset)

	limit, offset, _ = pageBounds(0, 10000)
	assert.Equal(t, maxPageSize, limit)
	assert.Equal(t, 0, offset)
}
