package delivery

import "errors"

var (
	// ErrUnsupportedDestination indicates the destination is outside the configured service area.
	ErrUnsupportedDestination = errors.New("delivery: unsupported destination")
	// ErrEmptyCart is returned when a fee is requested for a cart without line items.
	ErrEmptyCart = errors.New("delivery: empty cart")
	// ErrInvalidQuantity signals a non-positive or non-integer quantity.
	ErrInvalidQuantity = errors.New("delivery: invalid quantity")
	// ErrIncompatibleWeightSize is returned when weight and size classes are more than one level apart.
	ErrIncompatibleWeightSize = errors.New("delivery: incompatible weight and size")
	// ErrUnknownProduct indicates a line item without a base production estimate.
	ErrUnknownProduct = errors.New("delivery: unknown product")
	// ErrInvalidLineItem covers malformed line items such as unknown classes or negative production days.
	ErrInvalidLineItem = errors.New("delivery: invalid line item")
	// ErrInvalidServiceArea signals a warehouse or service region missing from the region table.
	ErrInvalidServiceArea = errors.New("delivery: invalid service area")
	// ErrInvalidPricing is returned for pricing configuration that cannot produce a fee.
	ErrInvalidPricing = errors.New("delivery: invalid pricing config")
)
