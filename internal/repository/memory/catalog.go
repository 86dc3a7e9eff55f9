package memory

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

func (s *Store) GetSKU(ctx context.Context, sku string) (*domain.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.skus[sku]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (s *Store) ListSKUs(ctx context.Context) ([]domain.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SKU, 0, len(s.skus))
	for _, row := range s.skus {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) UpsertSKU(ctx context.Context, sku *domain.SKU) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *sku
	row.UpdatedAt = s.now()
	s.skus[sku.SKU] = row
	return nil
}

func (s *Store) GetKeyGrowthOverride(ctx context.Context, key domain.SKUKey) (*domain.KeyGrowthOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.growthOverrides[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

func (s *Store) SetKeyGrowthOverride(ctx context.Context, override *domain.KeyGrowthOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	override.UpdatedAt = s.now()
	s.growthOverrides[domain.SKUKey{SKU: override.SKU, Warehouse: override.Warehouse}] = *override
	return nil
}

func (s *Store) GetInventory(ctx context.Context, key domain.SKUKey) (*domain.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.inventory[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &inv, nil
}

func (s *Store) UpsertInventory(ctx context.Context, inv *domain.Inventory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[domain.SKUKey{SKU: inv.SKU, Warehouse: inv.Warehouse}] = *inv
	return nil
}

func (s *Store) ListMonthlySales(ctx context.Context, key domain.SKUKey) ([]domain.MonthlySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.MonthlySales
	for k, row := range s.sales {
		if k.key == key {
			out = append(out, row)
		}
	}
	sortSales(out)
	return out, nil
}

func (s *Store) ListCategorySales(ctx context.Context, category, warehouse string) ([]domain.MonthlySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byMonth := make(map[time.Time]*domain.MonthlySales)
	for k, row := range s.sales {
		if k.key.Warehouse != warehouse {
			continue
		}
		sku, ok := s.skus[k.key.SKU]
		if !ok || sku.Category != category {
			continue
		}
		agg, ok := byMonth[k.month]
		if !ok {
			agg = &domain.MonthlySales{SKU: category, Warehouse: warehouse, Month: k.month}
			byMonth[k.month] = agg
		}
		agg.UnitsSold += row.UnitsSold
		if row.StockoutDays > agg.StockoutDays {
			agg.StockoutDays = row.StockoutDays
		}
	}
	out := make([]domain.MonthlySales, 0, len(byMonth))
	for _, agg := range byMonth {
		out = append(out, *agg)
	}
	sortSales(out)
	return out, nil
}

func (s *Store) GetMonthlySales(ctx context.Context, key domain.SKUKey, month time.Time) (*domain.MonthlySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.sales[salesKey{key: key, month: domain.MonthStart(month)}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (s *Store) UpsertMonthlySales(ctx context.Context, rows []domain.MonthlySales) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		row.Month = domain.MonthStart(row.Month)
		s.sales[salesKey{key: row.Key(), month: row.Month}] = row
	}
	return nil
}

func (s *Store) ListSalesKeys(ctx context.Context) ([]domain.SKUKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[domain.SKUKey]bool)
	var out []domain.SKUKey
	for k := range s.sales {
		if !seen[k.key] {
			seen[k.key] = true
			out = append(out, k.key)
		}
	}
	sortKeys(out)
	return out, nil
}

func (s *Store) ListOpenShipments(ctx context.Context, key domain.SKUKey) ([]domain.PendingShipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PendingShipment
	for _, sh := range s.shipments {
		if sh.SKU == key.SKU && sh.Warehouse == key.Warehouse && sh.Status.Open() {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListReceivedShipments(ctx context.Context, key domain.SKUKey, from, to time.Time) ([]domain.PendingShipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PendingShipment
	for _, sh := range s.shipments {
		if sh.SKU != key.SKU || sh.Warehouse != key.Warehouse || sh.Status != domain.ShipmentReceived || sh.ReceivedAt == nil {
			continue
		}
		if sh.ReceivedAt.Before(from) || !sh.ReceivedAt.Before(to) {
			continue
		}
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertShipment(ctx context.Context, shipment *domain.PendingShipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shipment.ID == 0 {
		shipment.ID = s.id()
	}
	s.shipments[shipment.ID] = *shipment
	return nil
}

// SetLeadTimeStats pins lead time statistics for a supplier and destination
func (s *Store) SetLeadTimeStats(stats domain.SupplierLeadTime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leadTimes[leadTimeKey{supplierID: stats.SupplierID, warehouse: stats.Warehouse}] = stats
}

// GetLeadTimeStats returns pinned statistics or derives them from received shipments
func (s *Store) GetLeadTimeStats(ctx context.Context, supplierID int64, warehouse string) (*domain.SupplierLeadTime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if stats, ok := s.leadTimes[leadTimeKey{supplierID: supplierID, warehouse: warehouse}]; ok {
		return &stats, nil
	}

	var days []float64
	var onTime int
	for _, sh := range s.shipments {
		if sh.SupplierID != supplierID || sh.Warehouse != warehouse || sh.ReceivedAt == nil {
			continue
		}
		days = append(days, sh.ReceivedAt.Sub(sh.OrderDate).Hours()/24)
		if sh.ExpectedArrival != nil && !sh.ReceivedAt.After(*sh.ExpectedArrival) {
			onTime++
		}
	}
	if len(days) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Float64s(days)

	var sum float64
	for _, d := range days {
		sum += d
	}
	return &domain.SupplierLeadTime{
		SupplierID:       supplierID,
		Warehouse:        warehouse,
		AvgDays:          sum / float64(len(days)),
		MedianDays:       percentileCont(days, 0.5),
		P95Days:          percentileCont(days, 0.95),
		ReliabilityScore: float64(onTime) / float64(len(days)),
		SampleCount:      len(days),
	}, nil
}

// percentileCont interpolates linearly between sorted values like postgres percentile_cont
func percentileCont(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func sortSales(rows []domain.MonthlySales) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month.Before(rows[j].Month) })
}

func sortKeys(keys []domain.SKUKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SKU != keys[j].SKU {
			return keys[i].SKU < keys[j].SKU
		}
		return keys[i].Warehouse < keys[j].Warehouse
	})
}
