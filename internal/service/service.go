// backend-go/internal/service/service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
)

// ProgressFunc receives batch progress from long recomputations
type ProgressFunc func(done, total int)

// BatchResult summarises a fan-out recomputation
type BatchResult struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

const maxReportedErrors = 20

// forEachKey runs fn for every key with at most workers in flight. Per-key
// failures are counted, not fatal; only ctx cancellation aborts the batch.
func forEachKey(ctx context.Context, keys []domain.SKUKey, workers int, progress ProgressFunc, fn func(ctx context.Context, key domain.SKUKey) error) (BatchResult, error) {
	if workers < 1 {
		workers = 1
	}
	res := BatchResult{Total: len(keys)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, key := range keys {
		key := key
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := fn(gctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				if len(res.Errors) < maxReportedErrors {
					res.Errors = append(res.Errors, key.String()+": "+err.Error())
				}
			} else {
				res.Succeeded++
			}
			if progress != nil {
				progress(res.Succeeded+res.Failed, res.Total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, ctx.Err()
}

// lookupSKU returns the catalog row of a SKU, or a bare row when the SKU is
// not in the master yet
func lookupSKU(ctx context.Context, catalog repository.CatalogRepository, sku string) (domain.SKU, error) {
	row, err := catalog.GetSKU(ctx, sku)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.SKU{SKU: sku}, nil
	}
	if err != nil {
		return domain.SKU{}, err
	}
	return *row, nil
}

// planningKeys lists every key with sales plus every active catalog SKU at
// each planned warehouse, narrowed by the warehouse and SKU filters
func planningKeys(ctx context.Context, catalog repository.CatalogRepository, sales repository.SalesRepository, warehouses, skuFilter []string) ([]domain.SKUKey, error) {
	whSet := toSet(warehouses)
	skuSet := toSet(skuFilter)

	seen := make(map[domain.SKUKey]struct{})
	add := func(k domain.SKUKey) {
		if len(whSet) > 0 {
			if _, ok := whSet[k.Warehouse]; !ok {
				return
			}
		}
		if len(skuSet) > 0 {
			if _, ok := skuSet[k.SKU]; !ok {
				return
			}
		}
		seen[k] = struct{}{}
	}

	salesKeys, err := sales.ListSalesKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales keys: %w", err)
	}
	for _, k := range salesKeys {
		add(k)
	}

	skus, err := catalog.ListSKUs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list skus: %w", err)
	}
	for _, s := range skus {
		if !s.IsActive() {
			continue
		}
		for _, wh := range warehouses {
			add(domain.SKUKey{SKU: s.SKU, Warehouse: wh})
		}
	}

	keys := make([]domain.SKUKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SKU != keys[j].SKU {
			return keys[i].SKU < keys[j].SKU
		}
		return keys[i].Warehouse < keys[j].Warehouse
	})
	return keys, nil
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func lowerAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
