package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Region is a named delivery destination anchored to a fixed coordinate.
type Region struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// ServiceArea lists the regions the business delivers to and the warehouse region orders ship from.
type ServiceArea struct {
	Warehouse string
	Regions   []string
}

// Zone classifies a destination by proximity to the warehouse.
type Zone string

const (
	// ZoneSameState is used when the destination is the warehouse region itself.
	ZoneSameState Zone = "same_state"
	// ZoneNear covers destinations within 150 km.
	ZoneNear Zone = "near"
	// ZoneMedium covers destinations within 400 km.
	ZoneMedium Zone = "medium"
	// ZoneFar covers everything further away.
	ZoneFar Zone = "far"
)

// WeightClass is the ordinal handling weight of a product.
type WeightClass int

const (
	WeightVeryLight WeightClass = iota
	WeightLight
	WeightMedium
	WeightHeavy
	WeightXHeavy
	WeightXXHeavy
)

var weightClassNames = [...]string{"VeryLight", "Light", "Medium", "Heavy", "XHeavy", "XXHeavy"}

// Valid reports whether the class is one of the six known levels.
func (w WeightClass) Valid() bool {
	return w >= WeightVeryLight && w <= WeightXXHeavy
}

func (w WeightClass) String() string {
	if !w.Valid() {
		return fmt.Sprintf("WeightClass(%d)", int(w))
	}
	return weightClassNames[w]
}

// MarshalText renders the class name.
func (w WeightClass) MarshalText() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("domain: invalid weight class %d", int(w))
	}
	return []byte(w.String()), nil
}

// UnmarshalText parses a class name case-insensitively.
func (w *WeightClass) UnmarshalText(text []byte) error {
	parsed, err := ParseWeightClass(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// ParseWeightClass resolves names such as "VeryLight" or "xxheavy".
func ParseWeightClass(value string) (WeightClass, error) {
	idx, ok := lookupClassName(weightClassNames[:], value)
	if !ok {
		return 0, fmt.Errorf("domain: unknown weight class %q", value)
	}
	return WeightClass(idx), nil
}

// SizeClass is the ordinal packaging size of a product.
type SizeClass int

const (
	SizeVerySmall SizeClass = iota
	SizeSmall
	SizeMedium
	SizeLarge
	SizeXL
	SizeXXL
)

var sizeClassNames = [...]string{"VerySmall", "Small", "Medium", "Large", "XL", "XXL"}

// Valid reports whether the class is one of the six known levels.
func (s SizeClass) Valid() bool {
	return s >= SizeVerySmall && s <= SizeXXL
}

func (s SizeClass) String() string {
	if !s.Valid() {
		return fmt.Sprintf("SizeClass(%d)", int(s))
	}
	return sizeClassNames[s]
}

// MarshalText renders the class name.
func (s SizeClass) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("domain: invalid size class %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a class name case-insensitively.
func (s *SizeClass) UnmarshalText(text []byte) error {
	parsed, err := ParseSizeClass(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSizeClass resolves names such as "VerySmall" or "xxl".
func ParseSizeClass(value string) (SizeClass, error) {
	idx, ok := lookupClassName(sizeClassNames[:], value)
	if !ok {
		return 0, fmt.Errorf("domain: unknown size class %q", value)
	}
	return SizeClass(idx), nil
}

func lookupClassName(names []string, value string) (int, bool) {
	trimmed := strings.TrimSpace(value)
	for idx, name := range names {
		if strings.EqualFold(name, trimmed) {
			return idx, true
		}
	}
	return 0, false
}

// CartLineItem is the read-only view of one cart entry used for delivery calculations.
type CartLineItem struct {
	ProductID string
	Quantity  int
	Weight    WeightClass
	Size      SizeClass
	// BaseProductionDays is nil when the product has no production estimate on record.
	BaseProductionDays *int
}

// FeeResult carries the delivery fee rounded to the nearest 100 minor units.
type FeeResult struct {
	Amount decimal.Decimal
}

// DeliveryEstimate is the expected delivery window for a cart.
type DeliveryEstimate struct {
	Earliest  time.Time
	Latest    time.Time
	TotalDays int
}

// DeliveryQuote merges the fee and schedule computed for a single checkout summary.
type DeliveryQuote struct {
	ID          string
	Destination string
	Zone        Zone
	DistanceKm  float64
	Fee         FeeResult
	Estimate    DeliveryEstimate
	QuotedAt    time.Time
}
