package cache

import (
	"context"

	"github.com/andresuchdata/autopo-forecast/internal/config"
	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

const demandStatKeyPrefix = "forecast:demand_stat"

// DemandStatCache keeps whole demand stat records in front of the database
type DemandStatCache interface {
	GetStat(ctx context.Context, key domain.SKUKey) (*domain.DemandStat, bool, error)
	SetStat(ctx context.Context, stat *domain.DemandStat) error
	Invalidate(ctx context.Context, key domain.SKUKey) error
	InvalidateAll(ctx context.Context) error
}

type redisDemandStatCache struct {
	store *jsonStore
}

type noopDemandStatCache struct{}

func NewDemandStatCache(cfg config.CacheConfig) (DemandStatCache, error) {
	if !cfg.Enabled {
		return &noopDemandStatCache{}, nil
	}

	store, err := newJSONStore(cfg, demandStatKeyPrefix)
	if err != nil {
		return nil, err
	}
	return &redisDemandStatCache{store: store}, nil
}

func NewNoopDemandStatCache() DemandStatCache {
	return &noopDemandStatCache{}
}

func (c *redisDemandStatCache) GetStat(ctx context.Context, key domain.SKUKey) (*domain.DemandStat, bool, error) {
	var stat domain.DemandStat
	found, err := c.store.get(ctx, demandStatSuffix(key), &stat)
	if err != nil || !found {
		return nil, false, err
	}
	return &stat, true, nil
}

// SetStat stores the full record with a single SET
func (c *redisDemandStatCache) SetStat(ctx context.Context, stat *domain.DemandStat) error {
	return c.store.set(ctx, demandStatSuffix(stat.Key()), stat)
}

func (c *redisDemandStatCache) Invalidate(ctx context.Context, key domain.SKUKey) error {
	return c.store.del(ctx, demandStatSuffix(key))
}

func (c *redisDemandStatCache) InvalidateAll(ctx context.Context) error {
	return c.store.clear(ctx)
}

func (n *noopDemandStatCache) GetStat(ctx context.Context, key domain.SKUKey) (*domain.DemandStat, bool, error) {
	return nil, false, nil
}

func (n *noopDemandStatCache) SetStat(ctx context.Context, stat *domain.DemandStat) error {
	return nil
}

func (n *noopDemandStatCache) Invalidate(ctx context.Context, key domain.SKUKey) error {
	return nil
}

func (n *noopDemandStatCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func demandStatSuffix(key domain.SKUKey) string {
	return key.Warehouse + ":" + key.SKU
}
