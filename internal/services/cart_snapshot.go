package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hanko-field/delivery/internal/delivery"
	"github.com/hanko-field/delivery/internal/domain"
)

// ErrQuoteInvalidInput signals a malformed cart snapshot.
var ErrQuoteInvalidInput = errors.New("delivery quote: invalid input")

// CartSnapshot is the checkout summary a quote is computed for.
type CartSnapshot struct {
	Destination string         `json:"destination"`
	Today       string         `json:"today,omitempty"`
	Items       []SnapshotItem `json:"items"`
}

// SnapshotItem is one cart line as submitted by the checkout. Quantity stays a decimal so
// fractional values are rejected instead of truncated.
type SnapshotItem struct {
	ProductID          string              `json:"productId"`
	Quantity           decimal.Decimal     `json:"quantity"`
	WeightClass        *domain.WeightClass `json:"weightClass"`
	SizeClass          *domain.SizeClass   `json:"sizeClass"`
	BaseProductionDays *int                `json:"baseProductionDays,omitempty"`
}

// DecodeCartSnapshot reads a single JSON snapshot, rejecting unknown fields.
func DecodeCartSnapshot(r io.Reader) (CartSnapshot, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var snapshot CartSnapshot
	if err := dec.Decode(&snapshot); err != nil {
		return CartSnapshot{}, fmt.Errorf("%w: decode snapshot: %v", ErrQuoteInvalidInput, err)
	}
	if dec.More() {
		return CartSnapshot{}, fmt.Errorf("%w: trailing data after snapshot", ErrQuoteInvalidInput)
	}
	return snapshot, nil
}

// LineItems converts the snapshot lines into engine line items.
func (s CartSnapshot) LineItems() ([]domain.CartLineItem, error) {
	items := make([]domain.CartLineItem, 0, len(s.Items))
	for idx, raw := range s.Items {
		id := strings.TrimSpace(raw.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: %w: item %d has no product id", ErrQuoteInvalidInput, delivery.ErrInvalidLineItem, idx)
		}
		if !raw.Quantity.IsInteger() {
			return nil, fmt.Errorf("%w: %w: item %s quantity %s is not a whole number", ErrQuoteInvalidInput, delivery.ErrInvalidQuantity, id, raw.Quantity)
		}
		if raw.Quantity.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
			return nil, fmt.Errorf("%w: %w: item %s quantity %s is out of range", ErrQuoteInvalidInput, delivery.ErrInvalidQuantity, id, raw.Quantity)
		}
		if raw.WeightClass == nil || raw.SizeClass == nil {
			return nil, fmt.Errorf("%w: %w: item %s is missing its weight or size class", ErrQuoteInvalidInput, delivery.ErrInvalidLineItem, id)
		}
		items = append(items, domain.CartLineItem{
			ProductID:          id,
			Quantity:           int(raw.Quantity.IntPart()),
			Weight:             *raw.WeightClass,
			Size:               *raw.SizeClass,
			BaseProductionDays: raw.BaseProductionDays,
		})
	}
	return items, nil
}

// Date resolves the snapshot's calendar day in loc, falling back to now when unset.
func (s CartSnapshot) Date(loc *time.Location, now time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw := strings.TrimSpace(s.Today)
	if raw == "" {
		local := now.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: today %q must be YYYY-MM-DD", ErrQuoteInvalidInput, raw)
	}
	return day, nil
}
