package learning

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

// RecordsFromDetail opens one accuracy record per forecast month of a detail
func RecordsFromDetail(run domain.ForecastRun, detail domain.ForecastDetail, sku domain.SKU, stat domain.DemandStat, profile domain.SeasonalProfile) []domain.ForecastAccuracyRecord {
	forecastDate := run.CreatedAt
	if run.CompletedAt != nil {
		forecastDate = *run.CompletedAt
	}
	forecastDate = time.Date(forecastDate.Year(), forecastDate.Month(), forecastDate.Day(), 0, 0, 0, 0, time.UTC)

	start := domain.MonthStart(run.ForecastStart)
	out := make([]domain.ForecastAccuracyRecord, 0, len(detail.MonthlyQty))
	for i, qty := range detail.MonthlyQty {
		periodStart := start.AddDate(0, i, 0)
		out = append(out, domain.ForecastAccuracyRecord{
			RunID:              run.ID,
			SKU:                detail.SKU,
			Warehouse:          detail.Warehouse,
			ForecastDate:       forecastDate,
			PeriodStart:        periodStart,
			PeriodEnd:          periodStart.AddDate(0, 1, -1),
			PredictedDemand:    qty,
			ABCClass:           sku.ABCClass,
			XYZClass:           sku.XYZClass,
			VolatilityClass:    stat.VolatilityClass,
			DataQuality:        stat.DataQuality,
			SeasonalConfidence: profile.MeanConfidence(),
			GrowthRate:         detail.GrowthRate,
		})
	}
	return out
}

// ApplyActual records realised demand and derives the error metrics
func ApplyActual(rec *domain.ForecastAccuracyRecord, sales domain.MonthlySales, now time.Time) {
	actual := sales.UnitsSold
	absErr := math.Abs(rec.PredictedDemand - actual)

	rec.ActualDemand = &actual
	rec.AbsoluteError = &absErr
	rec.PercentageError = nil
	if actual != 0 {
		pct := absErr / actual * 100
		rec.PercentageError = &pct
	}
	rec.StockoutAffected = sales.StockoutDays > 0
	rec.ActualRecordedAt = &now
}

// Summarize aggregates MAPE and bias, in percent, over records with actuals
func Summarize(key domain.SKUKey, records []domain.ForecastAccuracyRecord, includeStockout bool) domain.AccuracySummary {
	summary := domain.AccuracySummary{SKU: key.SKU, Warehouse: key.Warehouse}

	var apeSum, biasSum float64
	var n int
	for _, r := range records {
		if !r.HasActual() {
			continue
		}
		if r.StockoutAffected && !includeStockout {
			summary.StockoutExcluded++
			continue
		}
		summary.Periods++
		if *r.ActualDemand == 0 {
			continue
		}
		apeSum += math.Abs(r.PredictedDemand-*r.ActualDemand) / *r.ActualDemand
		biasSum += (r.PredictedDemand - *r.ActualDemand) / *r.ActualDemand
		n++
	}
	if n > 0 {
		summary.MAPE = apeSum / float64(n) * 100
		summary.Bias = biasSum / float64(n) * 100
	}
	return summary
}
