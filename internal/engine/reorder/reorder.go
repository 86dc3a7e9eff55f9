package reorder

import (
	"math"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
	"github.com/andresuchdata/autopo-forecast/internal/engine/supply"
)

const (
	aClassBufferDays = 7
	defaultZ         = 1.65

	DefaultReviewPeriodDays = 30
	DefaultLeadTimeDays     = 60
	DefaultBlendWeight      = 0.5
)

var serviceLevelZ = map[string]float64{
	"A": 1.96,
	"B": 1.65,
	"C": 1.28,
}

type Params struct {
	ReviewPeriodDays    int
	DefaultLeadTimeDays int
	// BlendWeight is the share of the forecast month in the blended demand
	BlendWeight float64
}

func (p Params) withDefaults() Params {
	if p.ReviewPeriodDays <= 0 {
		p.ReviewPeriodDays = DefaultReviewPeriodDays
	}
	if p.DefaultLeadTimeDays <= 0 {
		p.DefaultLeadTimeDays = DefaultLeadTimeDays
	}
	if p.BlendWeight < 0 || p.BlendWeight > 1 {
		p.BlendWeight = DefaultBlendWeight
	}
	return p
}

// Input is the state of one SKU/warehouse at the start of an order month
type Input struct {
	Key              domain.SKUKey
	OrderMonth       time.Time
	SKU              domain.SKU
	Stat             domain.DemandStat
	ForecastQty      *float64
	Inventory        float64
	Supply           supply.Result
	LeadTime         *domain.SupplierLeadTime
	LeadTimeOverride *int
	ArrivalOverride  *time.Time
	Params           Params
}

// Recommend computes urgency and suggested order quantity
func Recommend(in Input) domain.OrderRecommendation {
	p := in.Params.withDefaults()
	month := domain.MonthStart(in.OrderMonth)

	monthly := BlendDemand(in.Stat.Demand3MoWeighted, in.ForecastQty, p.BlendWeight)
	daily := monthly / 30
	lt := PlanningLeadTime(in.LeadTimeOverride, in.LeadTime, p.DefaultLeadTimeDays)
	safety := SafetyStock(in.SKU.ABCClass, in.Stat.CVOrZero(), daily, p.ReviewPeriodDays)

	rec := domain.OrderRecommendation{
		SKU:                 in.Key.SKU,
		Warehouse:           in.Key.Warehouse,
		OrderMonth:          month,
		CurrentInventory:    in.Inventory,
		PendingQty:          in.Supply.Raw,
		EffectivePendingQty: round2(in.Supply.Effective),
		PendingBreakdown:    in.Supply.Breakdown,
		CorrectedDemand:     round2(monthly),
		DailyDemand:         round4(daily),
		SafetyStock:         round2(safety),
		ReorderPoint:        round2(daily*float64(lt+p.ReviewPeriodDays) + safety),
		LeadTimeDays:        lt,
		LeadTimeOverride:    in.LeadTimeOverride,
		ExpectedArrival:     month.AddDate(0, 0, lt),
		ArrivalOverride:     in.ArrivalOverride,
	}
	if in.LeadTimeOverride != nil && *in.LeadTimeOverride <= 0 {
		rec.LeadTimeOverride = nil
	}

	position := in.Inventory + in.Supply.Effective
	// an order placed at the next review must still land before stock runs
	// out, so the total-need horizon is lead time plus two review periods
	// (120 days at LT 60 / review 30), not a fixed 150 days
	horizon := lt + 2*p.ReviewPeriodDays

	if daily <= 0 {
		rec.Urgency = domain.UrgencySkip
		rec.AdvisoryUrgency = domain.UrgencySkip
		return rec
	}

	coverage := position / daily
	months := coverage / 30
	rec.CoverageDays = ptr(round2(coverage))
	rec.CoverageMonths = ptr(round2(months))
	rec.Urgency = Urgency(coverage, lt)
	rec.AdvisoryUrgency, rec.ShortfallDays = Advisory(coverage, horizon)

	target := daily*float64(horizon) + safety
	rec.SuggestedQty = CeilToMultiple(target-position, in.SKU.TransferMultiple)
	return rec
}

// BlendDemand mixes corrected history with the forecast month when one exists
func BlendDemand(historical float64, forecast *float64, weight float64) float64 {
	if forecast == nil {
		return historical
	}
	return (1-weight)*historical + weight*(*forecast)
}

// PlanningLeadTime picks the override, then supplier P95, then the
// reliability-padded average, then the default
func PlanningLeadTime(override *int, stats *domain.SupplierLeadTime, def int) int {
	if def <= 0 {
		def = DefaultLeadTimeDays
	}
	if override != nil && *override > 0 {
		return *override
	}
	if stats != nil {
		if stats.P95Days > 0 {
			return int(math.Ceil(stats.P95Days))
		}
		if stats.AvgDays > 0 {
			rel := math.Max(0, math.Min(1, stats.ReliabilityScore))
			return int(math.Ceil(stats.AvgDays * (2 - rel)))
		}
	}
	return def
}

// SafetyStock is z·σ_daily·√review plus a one-week buffer for A items, with
// σ_daily approximated as CV × daily demand
func SafetyStock(abcClass string, cv, daily float64, reviewDays int) float64 {
	class := strings.ToUpper(strings.TrimSpace(abcClass))
	z, ok := serviceLevelZ[class]
	if !ok {
		z = defaultZ
	}
	s := z * cv * daily * math.Sqrt(float64(reviewDays))
	if class == "A" {
		s += daily * aClassBufferDays
	}
	return s
}

// Urgency applies the lead-time coverage tiers; boundaries fall to the lower tier
func Urgency(coverage float64, leadTime int) domain.Urgency {
	lt := float64(leadTime)
	switch {
	case coverage < lt+30:
		return domain.UrgencyMustOrder
	case coverage < lt+60:
		return domain.UrgencyShouldOrder
	case coverage < lt+90:
		return domain.UrgencyOptional
	default:
		return domain.UrgencySkip
	}
}

// Advisory checks that stock lasts until an order placed at the next review
// would arrive
func Advisory(coverage float64, horizon int) (domain.Urgency, float64) {
	gap := float64(horizon) - coverage
	if gap > 0 {
		return domain.UrgencyMustOrder, round2(gap)
	}
	return domain.UrgencySkip, 0
}

// CeilToMultiple rounds a positive quantity up to the transfer multiple
func CeilToMultiple(qty float64, multiple int) float64 {
	if qty <= 0 {
		return 0
	}
	if multiple <= 1 {
		return math.Ceil(qty)
	}
	m := float64(multiple)
	return math.Ceil(qty/m) * m
}

func ptr(v float64) *float64 { return &v }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
