package memory

import (
	"sync"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/repository"
)

type salesKey struct {
	key   domain.SKUKey
	month time.Time
}

type detailKey struct {
	runID int64
	key   domain.SKUKey
}

type leadTimeKey struct {
	supplierID int64
	warehouse  string
}

// Store keeps every repository in process memory
type Store struct {
	mu sync.RWMutex

	skus      map[string]domain.SKU
	inventory map[domain.SKUKey]domain.Inventory
	sales     map[salesKey]domain.MonthlySales
	shipments map[int64]domain.PendingShipment
	leadTimes map[leadTimeKey]domain.SupplierLeadTime

	demandStats     map[domain.SKUKey]domain.DemandStat
	seasonal        map[domain.SKUKey][]domain.SeasonalFactor
	seasonalAdj     map[domain.SKUKey]map[int]domain.SeasonalAdjustment
	growthOverrides map[domain.SKUKey]domain.KeyGrowthOverride

	runs        map[int64]domain.ForecastRun
	runningID   *int64
	details     map[detailKey]domain.ForecastDetail
	runErrors   map[int64][]domain.RunError
	adjustments []domain.ForecastAdjustment

	accuracy        map[int64]domain.ForecastAccuracyRecord
	learning        map[int64]domain.LearningAdjustment
	recommendations map[int64]domain.OrderRecommendation

	nextID int64
	now    func() time.Time
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		skus:            make(map[string]domain.SKU),
		inventory:       make(map[domain.SKUKey]domain.Inventory),
		sales:           make(map[salesKey]domain.MonthlySales),
		shipments:       make(map[int64]domain.PendingShipment),
		leadTimes:       make(map[leadTimeKey]domain.SupplierLeadTime),
		demandStats:     make(map[domain.SKUKey]domain.DemandStat),
		seasonal:        make(map[domain.SKUKey][]domain.SeasonalFactor),
		seasonalAdj:     make(map[domain.SKUKey]map[int]domain.SeasonalAdjustment),
		growthOverrides: make(map[domain.SKUKey]domain.KeyGrowthOverride),
		runs:            make(map[int64]domain.ForecastRun),
		details:         make(map[detailKey]domain.ForecastDetail),
		runErrors:       make(map[int64][]domain.RunError),
		accuracy:        make(map[int64]domain.ForecastAccuracyRecord),
		learning:        make(map[int64]domain.LearningAdjustment),
		recommendations: make(map[int64]domain.OrderRecommendation),
		now:             time.Now,
	}
}

// Repositories exposes the store through every repository interface
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Catalog:        s,
		Sales:          s,
		Supply:         s,
		DemandStats:    s,
		Seasonal:       s,
		Forecasts:      s,
		Accuracy:       s,
		Recommendation: s,
	}
}

// SetClock overrides the time source used for timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Verify interface compliance
var (
	_ repository.CatalogRepository        = (*Store)(nil)
	_ repository.SalesRepository          = (*Store)(nil)
	_ repository.SupplyRepository         = (*Store)(nil)
	_ repository.DemandStatRepository     = (*Store)(nil)
	_ repository.SeasonalRepository       = (*Store)(nil)
	_ repository.ForecastRepository       = (*Store)(nil)
	_ repository.AccuracyRepository       = (*Store)(nil)
	_ repository.RecommendationRepository = (*Store)(nil)
)
