package delivery

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hanko-field/delivery/internal/domain"
)

const (
	batchReductionCeiling = 0.9
	batchSqrtWeight       = 0.5
	batchFloorShare       = 0.3

	finalReductionMin   = 0.1
	finalReductionMax   = 0.2
	averageReductionLow = 0.2
	averageReductionHi  = 0.5
	finalFloorShare     = 0.8

	// dayEpsilon absorbs float noise before days are rounded up.
	dayEpsilon = 1e-9

	// MaxBaseProductionDays bounds the per-unit production estimate of a product.
	MaxBaseProductionDays = 365
	// MaxProductionDays bounds the production time of a whole cart.
	MaxProductionDays = 3650
)

// Scheduler estimates production time and the resulting delivery window.
type Scheduler struct {
	zones *ZoneResolver
}

// NewScheduler binds a scheduler to a zone resolver.
func NewScheduler(zones *ZoneResolver) (*Scheduler, error) {
	if zones == nil {
		return nil, errors.New("scheduler: zone resolver is required")
	}
	return &Scheduler{zones: zones}, nil
}

// Estimate resolves the destination and computes the delivery window starting from today.
func (s *Scheduler) Estimate(items []domain.CartLineItem, warehouse, destination string, area domain.ServiceArea, today time.Time) (domain.DeliveryEstimate, error) {
	resolution, err := s.zones.Resolve(warehouse, destination, area)
	if err != nil {
		return domain.DeliveryEstimate{}, err
	}
	return s.EstimateForResolution(items, resolution, today)
}

// EstimateForResolution computes the delivery window for an already resolved destination.
func (s *Scheduler) EstimateForResolution(items []domain.CartLineItem, resolution ZoneResolution, today time.Time) (domain.DeliveryEstimate, error) {
	gap, ok := zoneGaps[resolution.Zone]
	if !ok {
		return domain.DeliveryEstimate{}, fmt.Errorf("%w: unknown zone %q", ErrUnsupportedDestination, resolution.Zone)
	}

	totalDays, err := ProductionDays(items)
	if err != nil {
		return domain.DeliveryEstimate{}, err
	}

	days := int(math.Ceil(totalDays - dayEpsilon))
	if days < 0 {
		days = 0
	}
	start := startOfDay(today).AddDate(0, 0, days)

	return domain.DeliveryEstimate{
		Earliest:  AddWeekdays(start, gap.min),
		Latest:    AddWeekdays(start, gap.max),
		TotalDays: days,
	}, nil
}

type productBatch struct {
	baseDays int
	quantity int
}

// ProductionDays returns the batched production estimate in days before rounding.
func ProductionDays(items []domain.CartLineItem) (float64, error) {
	order := make([]string, 0, len(items))
	batches := make(map[string]*productBatch, len(items))
	totalQuantity := 0

	for _, item := range items {
		if item.BaseProductionDays == nil {
			return 0, fmt.Errorf("%w: item %s has no production estimate", ErrUnknownProduct, item.ProductID)
		}
		if *item.BaseProductionDays < 0 {
			return 0, fmt.Errorf("%w: item %s production days cannot be negative", ErrInvalidLineItem, item.ProductID)
		}
		if *item.BaseProductionDays > MaxBaseProductionDays {
			return 0, fmt.Errorf("%w: item %s production days %d exceed %d", ErrInvalidLineItem, item.ProductID, *item.BaseProductionDays, MaxBaseProductionDays)
		}
		if item.Quantity < 0 {
			return 0, fmt.Errorf("%w: item %s quantity cannot be negative, got %d", ErrInvalidQuantity, item.ProductID, item.Quantity)
		}
		batch, ok := batches[item.ProductID]
		if !ok {
			batch = &productBatch{baseDays: *item.BaseProductionDays}
			batches[item.ProductID] = batch
			order = append(order, item.ProductID)
		}
		if item.Quantity > math.MaxInt32-batch.quantity {
			return 0, fmt.Errorf("%w: product %s quantity is out of range", ErrInvalidQuantity, item.ProductID)
		}
		batch.quantity += item.Quantity
		totalQuantity += item.Quantity
	}

	preliminary := 0.0
	reductions := make([]float64, 0, len(order))
	for _, productID := range order {
		batch := batches[productID]
		days := batchDays(batch.baseDays, batch.quantity)
		preliminary += days

		direct := float64(batch.baseDays) * float64(batch.quantity)
		reduction := 0.0
		if direct != 0 {
			reduction = (direct - days) / direct
		}
		reductions = append(reductions, reduction)
	}

	total := preliminary
	// Single units and zero-day carts are returned as-is, without a neutral reduction pass.
	if totalQuantity != 1 && preliminary != 0 {
		average := 0.0
		for _, r := range reductions {
			average += r
		}
		average /= float64(len(reductions))
		total = math.Max(preliminary*(1-finalReduction(average)), preliminary*finalFloorShare)
	}

	if total > MaxProductionDays {
		return 0, fmt.Errorf("%w: production takes %.0f days, more than %d", ErrInvalidLineItem, math.Ceil(total), MaxProductionDays)
	}
	return total, nil
}

// batchDays applies diminishing-returns batching to one product.
func batchDays(baseDays, quantity int) float64 {
	if baseDays == 0 || quantity == 0 {
		return 0
	}
	b := float64(baseDays)
	if quantity == 1 {
		return b
	}
	q := float64(quantity)
	reduction := batchReductionCeiling * (1 - 1/(1+batchSqrtWeight*math.Sqrt(q)))
	raw := b * (1 - reduction) * q
	return math.Max(b*batchFloorShare*q, raw)
}

// finalReduction maps the average per-product batching gain to an order-level discount:
// strong batching earns the minimum discount, weak batching the maximum.
func finalReduction(average float64) float64 {
	switch {
	case average >= averageReductionHi:
		return finalReductionMin
	case average <= averageReductionLow:
		return finalReductionMax
	}
	position := (average - averageReductionLow) / (averageReductionHi - averageReductionLow)
	return finalReductionMax - position*(finalReductionMax-finalReductionMin)
}

// AddWeekdays advances start by gap business days, skipping Saturdays and Sundays.
func AddWeekdays(start time.Time, gap int) time.Time {
	current := start
	for added := 0; added < gap; {
		current = current.AddDate(0, 0, 1)
		if wd := current.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return current
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
