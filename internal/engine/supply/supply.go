package supply

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

// Bucket is the arrival window of a pending shipment
type Bucket string

const (
	BucketImmediate Bucket = "immediate"
	BucketNearTerm  Bucket = "near_term"
	BucketMedium    Bucket = "medium_term"
	BucketLongTerm  Bucket = "long_term"
)

const (
	estimatedDiscount = 0.8

	DefaultHorizonDays  = 120
	DefaultLeadTimeDays = 60
)

var bucketWeights = map[Bucket]float64{
	BucketImmediate: 1.0,
	BucketNearTerm:  0.8,
	BucketMedium:    0.6,
	BucketLongTerm:  0.4,
}

type Config struct {
	HorizonDays         int
	DefaultLeadTimeDays int
}

// Line is one shipment after bucketing
type Line struct {
	ShipmentID    int64     `json:"shipment_id"`
	Quantity      float64   `json:"quantity"`
	Arrival       time.Time `json:"arrival"`
	DaysUntil     int       `json:"days_until_arrival"`
	Estimated     bool      `json:"estimated"`
	Bucket        Bucket    `json:"bucket"`
	BeyondHorizon bool      `json:"beyond_horizon"`
	Effective     float64   `json:"effective"`
}

// Result is the raw and effective pending supply of a SKU/warehouse
type Result struct {
	Raw       float64                 `json:"pending_raw"`
	Effective float64                 `json:"pending_effective"`
	Breakdown domain.PendingBreakdown `json:"breakdown"`
	Lines     []Line                  `json:"lines"`
}

// Aggregate buckets open shipments by days until arrival and discounts them
// into an effective pending quantity
func Aggregate(shipments []domain.PendingShipment, asOf time.Time, cfg Config) Result {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultHorizonDays
	}
	if cfg.DefaultLeadTimeDays <= 0 {
		cfg.DefaultLeadTimeDays = DefaultLeadTimeDays
	}
	today := day(asOf)

	var res Result
	var estimatedQty float64
	for _, sh := range shipments {
		if !sh.Status.Open() || sh.Quantity <= 0 {
			continue
		}
		arrival, estimated := Arrival(sh, cfg.DefaultLeadTimeDays)
		days := int(math.Floor(day(arrival).Sub(today).Hours() / 24))

		line := Line{
			ShipmentID: sh.ID,
			Quantity:   sh.Quantity,
			Arrival:    arrival,
			DaysUntil:  days,
			Estimated:  estimated,
			Bucket:     BucketFor(days),
		}
		res.Raw += sh.Quantity
		if estimated {
			estimatedQty += sh.Quantity
		}
		if days < 0 {
			res.Breakdown.OverdueQuantity += sh.Quantity
		}

		if days > cfg.HorizonDays {
			line.BeyondHorizon = true
			res.Breakdown.BeyondHorizon += sh.Quantity
			res.Lines = append(res.Lines, line)
			continue
		}

		switch line.Bucket {
		case BucketImmediate:
			res.Breakdown.Immediate += sh.Quantity
		case BucketNearTerm:
			res.Breakdown.NearTerm += sh.Quantity
		case BucketMedium:
			res.Breakdown.MediumTerm += sh.Quantity
		default:
			res.Breakdown.LongTerm += sh.Quantity
		}

		qty := sh.Quantity
		if estimated {
			qty *= estimatedDiscount
		}
		line.Effective = qty * bucketWeights[line.Bucket]
		res.Effective += line.Effective
		res.Lines = append(res.Lines, line)
	}

	if res.Raw > 0 {
		res.Breakdown.EstimatedShare = estimatedQty / res.Raw
	}
	return res
}

// Arrival returns the expected arrival of a shipment and whether it is estimated
func Arrival(sh domain.PendingShipment, defaultLeadTime int) (time.Time, bool) {
	if sh.ExpectedArrival != nil {
		return *sh.ExpectedArrival, sh.IsEstimated
	}
	lt := sh.LeadTimeDays
	if lt <= 0 {
		lt = defaultLeadTime
	}
	return sh.OrderDate.AddDate(0, 0, lt), true
}

// BucketFor maps days until arrival to its window; overdue counts as immediate
func BucketFor(days int) Bucket {
	switch {
	case days <= 30:
		return BucketImmediate
	case days <= 60:
		return BucketNearTerm
	case days <= 90:
		return BucketMedium
	default:
		return BucketLongTerm
	}
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
