package repository

// Repositories bundles every store the services depend on
type Repositories struct {
	Catalog        CatalogRepository
	Sales          SalesRepository
	Supply         SupplyRepository
	DemandStats    DemandStatRepository
	Seasonal       SeasonalRepository
	Forecasts      ForecastRepository
	Accuracy       AccuracyRepository
	Recommendation RecommendationRepository
}
