package delivery

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/hanko-field/delivery/internal/domain"
)

const (
	heavySurchargeFrom  = 20
	lightSurchargeFrom  = 5
	dampenBelowQuantity = 10
)

var (
	rateScaleUnit      = decimal.NewFromInt(1000)
	heavySurchargeRate = d("0.21")
	lightSurchargeRate = d("0.18")
	surchargeQuantity  = decimal.NewFromInt(20)
)

// PricingConfig holds the fee constants applied on top of the fixed tier tables.
type PricingConfig struct {
	BaseFee        decimal.Decimal
	FeePerKm       decimal.Decimal
	WeightFee      decimal.Decimal
	SizeFee        decimal.Decimal
	HeavyThreshold decimal.Decimal
	RateScaleCap   decimal.Decimal
}

// DefaultPricingConfig returns the production fee constants.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		BaseFee:        decimal.NewFromInt(1500),
		FeePerKm:       d("0.1"),
		WeightFee:      decimal.NewFromInt(1000),
		SizeFee:        decimal.NewFromInt(500),
		HeavyThreshold: decimal.NewFromInt(4000),
		RateScaleCap:   decimal.NewFromInt(5),
	}
}

// Validate rejects negative constants and a non-positive heavy threshold or rate cap.
func (c PricingConfig) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"BaseFee", c.BaseFee},
		{"FeePerKm", c.FeePerKm},
		{"WeightFee", c.WeightFee},
		{"SizeFee", c.SizeFee},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalidPricing, f.name)
		}
	}
	if !c.HeavyThreshold.IsPositive() {
		return fmt.Errorf("%w: HeavyThreshold must be positive", ErrInvalidPricing)
	}
	if !c.RateScaleCap.IsPositive() {
		return fmt.Errorf("%w: RateScaleCap must be positive", ErrInvalidPricing)
	}
	return nil
}

// FeeCalculator prices delivery from distance, item handling class and quantity.
type FeeCalculator struct {
	zones   *ZoneResolver
	pricing PricingConfig
}

// NewFeeCalculator validates pricing and binds the calculator to a zone resolver.
func NewFeeCalculator(zones *ZoneResolver, pricing PricingConfig) (*FeeCalculator, error) {
	if zones == nil {
		return nil, errors.New("fee calculator: zone resolver is required")
	}
	if err := pricing.Validate(); err != nil {
		return nil, err
	}
	return &FeeCalculator{zones: zones, pricing: pricing}, nil
}

// Calculate resolves the destination and prices the cart.
func (c *FeeCalculator) Calculate(items []domain.CartLineItem, warehouse, destination string, area domain.ServiceArea) (domain.FeeResult, error) {
	resolution, err := c.zones.Resolve(warehouse, destination, area)
	if err != nil {
		return domain.FeeResult{}, err
	}
	return c.CalculateForResolution(items, resolution)
}

// CalculateForResolution prices the cart for an already resolved destination.
func (c *FeeCalculator) CalculateForResolution(items []domain.CartLineItem, resolution ZoneResolution) (domain.FeeResult, error) {
	if len(items) == 0 {
		return domain.FeeResult{}, ErrEmptyCart
	}
	for _, item := range items {
		if err := validateFeeItem(item); err != nil {
			return domain.FeeResult{}, err
		}
	}

	distanceKm := resolution.DistanceKm
	charge := distanceCharge(distanceKm)

	hasHeavyItem := false
	for _, item := range items {
		if !c.itemMultiplier(item).LessThan(c.pricing.HeavyThreshold) {
			hasHeavyItem = true
			break
		}
	}

	total := c.pricing.BaseFee
	for _, item := range items {
		total = total.Add(c.itemCharge(item, distanceKm, charge, hasHeavyItem))
	}

	return domain.FeeResult{Amount: roundToHundreds(total)}, nil
}

// itemCharge returns the handling fee plus distance fee of a single line item.
func (c *FeeCalculator) itemCharge(item domain.CartLineItem, distanceKm float64, charge decimal.Decimal, hasHeavyItem bool) decimal.Decimal {
	multiplier := c.itemMultiplier(item)
	quantity := decimal.NewFromInt(int64(item.Quantity))
	heavy := !multiplier.LessThan(c.pricing.HeavyThreshold)

	var quantityTiers []tier[decimal.Decimal]
	if heavy {
		quantityTiers = lookup(heavyQuantityTiers, distanceKm)
	} else {
		quantityTiers = lightQuantityTiers
	}
	itemFee := multiplier.Mul(quantity).Mul(lookup(quantityTiers, float64(item.Quantity)))

	rate := c.pricing.FeePerKm.Mul(decimal.Min(multiplier.Div(rateScaleUnit), c.pricing.RateScaleCap))
	switch {
	case heavy && item.Quantity >= heavySurchargeFrom:
		rate = rate.Mul(surcharge(heavySurchargeRate, quantity))
	case !heavy && item.Quantity >= lightSurchargeFrom:
		rate = rate.Mul(surcharge(lightSurchargeRate, quantity))
	}

	dampened := hasHeavyItem && !heavy && item.Quantity < dampenBelowQuantity
	factor := lookup(lightDampeningTiers, distanceKm)
	if dampened {
		itemFee = itemFee.Mul(factor)
	}

	distanceFee := itemFee.Mul(rate).Mul(charge)
	if dampened {
		// The dampened item fee already carries the factor; it is applied to the distance fee again.
		distanceFee = distanceFee.Mul(factor)
	}

	return itemFee.Add(distanceFee)
}

// itemMultiplier is the combined weight and size fee of one unit.
func (c *FeeCalculator) itemMultiplier(item domain.CartLineItem) decimal.Decimal {
	weightFee := weightMultipliers[item.Weight].Mul(c.pricing.WeightFee)
	sizeFee := sizeMultipliers[item.Size].Mul(c.pricing.SizeFee)
	return weightFee.Add(sizeFee)
}

func surcharge(rate, quantity decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(rate.Mul(quantity).Div(surchargeQuantity))
}

// distanceCharge is the selected tier multiplier times the distance, floored at the largest
// charge reachable inside any lower tier so the charge never drops at a tier boundary.
func distanceCharge(distanceKm float64) decimal.Decimal {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return decimal.Zero
	}
	distance := decimal.NewFromFloat(distanceKm)
	floor := decimal.Zero
	for _, t := range distanceRateTiers {
		if distanceKm < t.below {
			return decimal.Max(t.value.Mul(distance), floor)
		}
		floor = decimal.Max(floor, t.value.Mul(decimal.NewFromFloat(t.below)))
	}
	return floor
}

func validateFeeItem(item domain.CartLineItem) error {
	if item.Quantity <= 0 {
		return fmt.Errorf("%w: item %s quantity must be positive, got %d", ErrInvalidQuantity, item.ProductID, item.Quantity)
	}
	if !item.Weight.Valid() || !item.Size.Valid() {
		return fmt.Errorf("%w: item %s has unknown weight or size class", ErrInvalidLineItem, item.ProductID)
	}
	return checkCompatible(item)
}

// checkCompatible enforces that weight and size sit at most one level apart.
func checkCompatible(item domain.CartLineItem) error {
	gap := int(item.Weight) - int(item.Size)
	if gap < -1 || gap > 1 {
		return fmt.Errorf("%w: item %s weight %s with size %s", ErrIncompatibleWeightSize, item.ProductID, item.Weight, item.Size)
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

// roundToHundreds rounds half-up to the nearest 100 minor units.
func roundToHundreds(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(hundred).Add(d("0.5")).Floor().Mul(hundred)
}
