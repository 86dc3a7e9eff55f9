package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

const accuracySummaryKeyPrefix = "forecast:accuracy_summary"

// AccuracyFilter selects the keys an accuracy summary covers
type AccuracyFilter struct {
	Keys            []domain.SKUKey
	IncludeStockout bool
}

type AccuracySummaryCache interface {
	GetSummary(ctx context.Context, filter AccuracyFilter) ([]domain.AccuracySummary, bool, error)
	SetSummary(ctx context.Context, filter AccuracyFilter, summaries []domain.AccuracySummary) error
	InvalidateAll(ctx context.Context) error
}

type redisAccuracySummaryCache struct {
	store *jsonStore
}

type noopAccuracySummaryCache struct{}

func NewAccuracySummaryCache(cfg config.CacheConfig) (AccuracySummaryCache, error) {
	if !cfg.Enabled {
		return &noopAccuracySummaryCache{}, nil
	}

	store, err := newJSONStore(cfg, accuracySummaryKeyPrefix)
	if err != nil {
		return nil, err
	}
	return &redisAccuracySummaryCache{store: store}, nil
}

func NewNoopAccuracySummaryCache() AccuracySummaryCache {
	return &noopAccuracySummaryCache{}
}

func (c *redisAccuracySummaryCache) GetSummary(ctx context.Context, filter AccuracyFilter) ([]domain.AccuracySummary, bool, error) {
	var summaries []domain.AccuracySummary
	found, err := c.store.get(ctx, accuracySummarySuffix(filter), &summaries)
	if err != nil || !found {
		return nil, false, err
	}
	return summaries, true, nil
}

func (c *redisAccuracySummaryCache) SetSummary(ctx context.Context, filter AccuracyFilter, summaries []domain.AccuracySummary) error {
	return c.store.set(ctx, accuracySummarySuffix(filter), summaries)
}

// InvalidateAll drops every cached summary; any recorded actual can change them
func (c *redisAccuracySummaryCache) InvalidateAll(ctx context.Context) error {
	return c.store.clear(ctx)
}

func (n *noopAccuracySummaryCache) GetSummary(ctx context.Context, filter AccuracyFilter) ([]domain.AccuracySummary, bool, error) {
	return nil, false, nil
}

func (n *noopAccuracySummaryCache) SetSummary(ctx context.Context, filter AccuracyFilter, summaries []domain.AccuracySummary) error {
	return nil
}

func (n *noopAccuracySummaryCache) InvalidateAll(ctx context.Context) error {
	return nil
}

// accuracySummarySuffix hashes the sorted key set so filter order does not
// matter
func accuracySummarySuffix(filter AccuracyFilter) string {
	parts := make([]string, 0, len(filter.Keys))
	for _, k := range filter.Keys {
		parts = append(parts, k.String())
	}
	sort.Strings(parts)

	raw := strings.Join(parts, "|") + "|stockout=" + strconv.FormatBool(filter.IncludeStockout)
	hash := sha1.Sum([]byte(raw))
	return hex.EncodeToString(hash[:])
}
