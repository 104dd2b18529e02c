package delivery

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/hanko-field/delivery/internal/domain"
)

// tier maps every input below the limit to value. Tables are ordered by ascending limit and
// the last entry must use an infinite limit.
type tier[V any] struct {
	below float64
	value V
}

// lookup returns the value of the first tier whose limit is strictly greater than x.
func lookup[V any](tiers []tier[V], x float64) V {
	for _, t := range tiers {
		if x < t.below {
			return t.value
		}
	}
	return tiers[len(tiers)-1].value
}

var unbounded = math.Inf(1)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// distanceRateTiers are per-km multipliers of PricingConfig.FeePerKm.
var distanceRateTiers = []tier[decimal.Decimal]{
	{below: 1, value: d("0")},
	{below: 150, value: d("0.019")},
	{below: 400, value: d("0.016")},
	{below: 800, value: d("0.014")},
	{below: unbounded, value: d("0.0125")},
}

var lightQuantityTiers = []tier[decimal.Decimal]{
	{below: 5, value: d("1.2")},
	{below: 10, value: d("1.15")},
	{below: 20, value: d("1.1")},
	{below: unbounded, value: d("1.0")},
}

// heavyQuantityTiers selects a quantity table by distance bracket.
var heavyQuantityTiers = []tier[[]tier[decimal.Decimal]]{
	{below: 150, value: []tier[decimal.Decimal]{
		{below: 5, value: d("1.3")},
		{below: 10, value: d("1.6")},
		{below: 20, value: d("2.2")},
		{below: unbounded, value: d("3.5")},
	}},
	{below: 400, value: []tier[decimal.Decimal]{
		{below: 5, value: d("1.4")},
		{below: 10, value: d("1.9")},
		{below: 20, value: d("2.8")},
		{below: unbounded, value: d("4.5")},
	}},
	{below: 800, value: []tier[decimal.Decimal]{
		{below: 5, value: d("1.5")},
		{below: 10, value: d("2.2")},
		{below: 20, value: d("3.4")},
		{below: unbounded, value: d("6.0")},
	}},
	{below: unbounded, value: []tier[decimal.Decimal]{
		{below: 5, value: d("1.6")},
		{below: 10, value: d("2.5")},
		{below: 20, value: d("4.0")},
		{below: unbounded, value: d("8.5")},
	}},
}

// lightDampeningTiers scale light items shipped alongside a heavy item.
var lightDampeningTiers = []tier[decimal.Decimal]{
	{below: 150, value: d("0.4")},
	{below: unbounded, value: d("0.5")},
}

var weightMultipliers = map[domain.WeightClass]decimal.Decimal{
	domain.WeightVeryLight: d("0.5"),
	domain.WeightLight:     d("1"),
	domain.WeightMedium:    d("1.5"),
	domain.WeightHeavy:     d("2"),
	domain.WeightXHeavy:    d("3"),
	domain.WeightXXHeavy:   d("4"),
}

var sizeMultipliers = map[domain.SizeClass]decimal.Decimal{
	domain.SizeVerySmall: d("0.5"),
	domain.SizeSmall:     d("1"),
	domain.SizeMedium:    d("1.5"),
	domain.SizeLarge:     d("2"),
	domain.SizeXL:        d("3"),
	domain.SizeXXL:       d("4"),
}

// zoneBounds are inclusive upper distances for the non-local zones.
var zoneBounds = []struct {
	maxKm float64
	zone  domain.Zone
}{
	{maxKm: 150, zone: domain.ZoneNear},
	{maxKm: 400, zone: domain.ZoneMedium},
}

type weekdayGap struct {
	min int
	max int
}

var zoneGaps = map[domain.Zone]weekdayGap{
	domain.ZoneSameState: {min: 1, max: 2},
	domain.ZoneNear:      {min: 2, max: 4},
	domain.ZoneMedium:    {min: 4, max: 6},
	domain.ZoneFar:       {min: 6, max: 9},
}
