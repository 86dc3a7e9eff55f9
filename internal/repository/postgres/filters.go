package postgres

import (
	"fmt"
	"strings"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

const maxPageSize = 500

// buildRunFilterClause constructs the WHERE clause for run listings
func buildRunFilterClause(filter domain.RunFilter, alias string, startIndex int) (string, []interface{}) {
	alias = normalizeAlias(alias)
	var (
		clauses []string
		args    []interface{}
	)
	idx := startIndex

	if filter.Status != "" {
		clauses = append(clauses, fmt.Sprintf("%sstatus = $%d", alias, idx))
		args = append(args, filter.Status)
		idx++
	}

	if !filter.IncludeArchived {
		clauses = append(clauses, fmt.Sprintf("%sarchived = FALSE", alias))
	}

	return joinClauses(clauses), args
}

// buildRecommendationFilterClause constructs the WHERE clause for recommendation listings
func buildRecommendationFilterClause(filter domain.RecommendationFilter, alias string, startIndex int) (string, []interface{}) {
	alias = normalizeAlias(alias)
	var (
		clauses []string
		args    []interface{}
	)
	idx := startIndex

	if !filter.OrderMonth.IsZero() {
		clauses = append(clauses, fmt.Sprintf("%sorder_month = $%d", alias, idx))
		args = append(args, domain.MonthStart(filter.OrderMonth))
		idx++
	}

	if filter.Warehouse != "" {
		clauses = append(clauses, fmt.Sprintf("%swarehouse = $%d", alias, idx))
		args = append(args, filter.Warehouse)
		idx++
	}

	if filter.Urgency != "" {
		clauses = append(clauses, fmt.Sprintf("%surgency_level = $%d", alias, idx))
		args = append(args, filter.Urgency)
		idx++
	}

	return joinClauses(clauses), args
}

func joinClauses(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func normalizeAlias(alias string) string {
	if alias == "" {
		return ""
	}
	if !strings.HasSuffix(alias, ".") {
		return alias + "."
	}
	return alias
}

// pageBounds returns LIMIT and OFFSET; a non-positive page size means no limit
func pageBounds(page, pageSize int) (limit, offset int, unlimited bool) {
	if pageSize <= 0 {
		return 0, 0, true
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize, false
}
