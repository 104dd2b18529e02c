package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hanko-field/delivery/internal/delivery"
	"github.com/hanko-field/delivery/internal/domain"
	"github.com/hanko-field/delivery/internal/platform/regions"
)

type quoteEngine struct {
	zones     *delivery.ZoneResolver
	fees      *delivery.FeeCalculator
	scheduler *delivery.Scheduler
	area      domain.ServiceArea
}

func newQuoteEngine(t *testing.T, served ...string) quoteEngine {
	t.Helper()
	loaded, err := regions.Default()
	if err != nil {
		t.Fatalf("regions.Default error: %v", err)
	}
	table, err := delivery.NewRegionTable(loaded)
	if err != nil {
		t.Fatalf("NewRegionTable error: %v", err)
	}
	area, err := delivery.NewServiceArea(table, "Lagos", served)
	if err != nil {
		t.Fatalf("NewServiceArea error: %v", err)
	}
	zones := delivery.NewZoneResolver(table)
	fees, err := delivery.NewFeeCalculator(zones, delivery.DefaultPricingConfig())
	if err != nil {
		t.Fatalf("NewFeeCalculator error: %v", err)
	}
	scheduler, err := delivery.NewScheduler(zones)
	if err != nil {
		t.Fatalf("NewScheduler error: %v", err)
	}
	return quoteEngine{zones: zones, fees: fees, scheduler: scheduler, area: area}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sequenceIDs struct {
	n int
}

func (s *sequenceIDs) Next() string {
	s.n++
	return fmt.Sprintf("quote-%d", s.n)
}

type recordedEvent struct {
	event  string
	fields map[string]any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Log(_ context.Context, event string, fields map[string]any) {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{event: event, fields: fields})
	r.mu.Unlock()
}

func (r *eventRecorder) find(event string) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.event == event {
			return e, true
		}
	}
	return recordedEvent{}, false
}

func newTestQuoteService(t *testing.T, engine quoteEngine, ttl time.Duration) (*DeliveryQuoteService, *fakeClock, *sequenceIDs, *eventRecorder) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, time.January, 1, 9, 30, 0, 0, time.UTC)}
	ids := &sequenceIDs{}
	events := &eventRecorder{}
	svc, err := NewDeliveryQuoteService(DeliveryQuoteServiceDeps{
		Zones:       engine.zones,
		Fees:        engine.fees,
		Scheduler:   engine.scheduler,
		Area:        engine.area,
		Location:    time.UTC,
		CacheTTL:    ttl,
		Now:         clock.Now,
		IDGenerator: ids.Next,
		Logger:      events.Log,
	})
	if err != nil {
		t.Fatalf("NewDeliveryQuoteService error: %v", err)
	}
	return svc, clock, ids, events
}

func decodeSnapshot(t *testing.T, body string) CartSnapshot {
	t.Helper()
	snapshot, err := DecodeCartSnapshot(strings.NewReader(body))
	if err != nil {
		t.Fatalf("DecodeCartSnapshot error: %v", err)
	}
	return snapshot
}

const ogunSnapshot = `{
  "destination": "ogun",
  "today": "2024-01-01",
  "items": [
    {"productId": "seal-a", "quantity": 2, "weightClass": "Medium", "sizeClass": "Large", "baseProductionDays": 3},
    {"productId": "case-b", "quantity": "1", "weightClass": "light", "sizeClass": "small", "baseProductionDays": 1}
  ]
}`

func TestDeliveryQuoteService_MergesFeeAndWindow(t *testing.T) {
	engine := newQuoteEngine(t)
	svc, clock, _, events := newTestQuoteService(t, engine, time.Hour)
	snapshot := decodeSnapshot(t, ogunSnapshot)

	result, err := svc.Quote(context.Background(), QuoteCommand{Snapshot: snapshot})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if result.Cached {
		t.Fatalf("expected first quote to be computed")
	}

	items, err := snapshot.LineItems()
	if err != nil {
		t.Fatalf("LineItems error: %v", err)
	}
	today := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	wantFee, err := engine.fees.Calculate(items, engine.area.Warehouse, "Ogun", engine.area)
	if err != nil {
		t.Fatalf("Calculate error: %v", err)
	}
	wantEstimate, err := engine.scheduler.Estimate(items, engine.area.Warehouse, "Ogun", engine.area, today)
	if err != nil {
		t.Fatalf("Estimate error: %v", err)
	}

	quote := result.Quote
	if quote.ID != "quote-1" {
		t.Fatalf("expected generated id quote-1, got %q", quote.ID)
	}
	if quote.Destination != "Ogun" || quote.Zone != domain.ZoneNear {
		t.Fatalf("unexpected destination or zone: %s / %s", quote.Destination, quote.Zone)
	}
	if quote.DistanceKm <= 0 || quote.DistanceKm > 150 {
		t.Fatalf("expected near distance, got %f", quote.DistanceKm)
	}
	if !quote.Fee.Amount.Equal(wantFee.Amount) {
		t.Fatalf("expected fee %s, got %s", wantFee.Amount, quote.Fee.Amount)
	}
	if quote.Estimate != wantEstimate {
		t.Fatalf("expected estimate %+v, got %+v", wantEstimate, quote.Estimate)
	}
	if !quote.QuotedAt.Equal(clock.Now()) {
		t.Fatalf("expected quotedAt %s, got %s", clock.Now(), quote.QuotedAt)
	}

	event, ok := events.find("delivery_quote.computed")
	if !ok {
		t.Fatalf("expected computed event to be logged")
	}
	if event.fields["zone"] != "near" || event.fields["fee"] != wantFee.Amount.String() {
		t.Fatalf("unexpected event fields: %v", event.fields)
	}
}

func TestDeliveryQuoteService_Cache(t *testing.T) {
	engine := newQuoteEngine(t)
	svc, clock, ids, _ := newTestQuoteService(t, engine, 5*time.Minute)
	cmd := QuoteCommand{Snapshot: decodeSnapshot(t, ogunSnapshot)}
	ctx := context.Background()

	first, err := svc.Quote(ctx, cmd)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}

	second, err := svc.Quote(ctx, cmd)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if !second.Cached || second.Quote.ID != first.Quote.ID {
		t.Fatalf("expected cached quote %s, got %+v", first.Quote.ID, second)
	}

	// Destination matching is case-insensitive, so the folded key hits too.
	upper := cmd
	upper.Snapshot.Destination = "OGUN"
	third, err := svc.Quote(ctx, upper)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if !third.Cached {
		t.Fatalf("expected case-insensitive cache hit")
	}

	bypass := cmd
	bypass.BypassCache = true
	fresh, err := svc.Quote(ctx, bypass)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if fresh.Cached || fresh.Quote.ID == first.Quote.ID {
		t.Fatalf("expected bypass to compute a new quote, got %+v", fresh)
	}
	if !fresh.Quote.Fee.Amount.Equal(first.Quote.Fee.Amount) || fresh.Quote.Estimate != first.Quote.Estimate {
		t.Fatalf("expected recomputed quote to match: %+v vs %+v", fresh.Quote, first.Quote)
	}

	clock.Advance(6 * time.Minute)
	expired, err := svc.Quote(ctx, cmd)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if expired.Cached {
		t.Fatalf("expected cache entry to expire")
	}
	if ids.n != 3 {
		t.Fatalf("expected 3 generated ids, got %d", ids.n)
	}
}

func TestDeliveryQuoteService_CacheKeySeparatesProductIDs(t *testing.T) {
	engine := newQuoteEngine(t)
	svc, _, _, _ := newTestQuoteService(t, engine, time.Hour)
	ctx := context.Background()

	single := decodeSnapshot(t, `{"destination": "Ogun", "today": "2024-01-01", "items": [
	  {"productId": "a,1,Light,Small,1;b", "quantity": 1, "weightClass": "Light", "sizeClass": "Small", "baseProductionDays": 1}
	]}`)
	pair := decodeSnapshot(t, `{"destination": "Ogun", "today": "2024-01-01", "items": [
	  {"productId": "a", "quantity": 1, "weightClass": "Light", "sizeClass": "Small", "baseProductionDays": 1},
	  {"productId": "b", "quantity": 1, "weightClass": "Light", "sizeClass": "Small", "baseProductionDays": 1}
	]}`)

	first, err := svc.Quote(ctx, QuoteCommand{Snapshot: single})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	second, err := svc.Quote(ctx, QuoteCommand{Snapshot: pair})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if second.Cached || second.Quote.ID == first.Quote.ID {
		t.Fatalf("expected a separate quote for a different cart, got cached %s", second.Quote.ID)
	}

	items, err := pair.LineItems()
	if err != nil {
		t.Fatalf("LineItems error: %v", err)
	}
	want, err := engine.fees.Calculate(items, engine.area.Warehouse, "Ogun", engine.area)
	if err != nil {
		t.Fatalf("Calculate error: %v", err)
	}
	if !second.Quote.Fee.Amount.Equal(want.Amount) {
		t.Fatalf("expected fee %s, got %s", want.Amount, second.Quote.Fee.Amount)
	}
	if first.Quote.Fee.Amount.Equal(second.Quote.Fee.Amount) {
		t.Fatalf("expected one- and two-item carts to be priced differently, both %s", first.Quote.Fee.Amount)
	}
}

func TestDeliveryQuoteService_CacheSweepsExpiredEntries(t *testing.T) {
	engine := newQuoteEngine(t)
	svc, clock, _, _ := newTestQuoteService(t, engine, 5*time.Minute)
	ctx := context.Background()

	if _, err := svc.Quote(ctx, QuoteCommand{Snapshot: decodeSnapshot(t, ogunSnapshot)}); err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	clock.Advance(6 * time.Minute)

	other := decodeSnapshot(t, ogunSnapshot)
	other.Destination = "Oyo"
	if _, err := svc.Quote(ctx, QuoteCommand{Snapshot: other}); err != nil {
		t.Fatalf("Quote error: %v", err)
	}

	svc.cache.mu.RLock()
	size := len(svc.cache.m)
	svc.cache.mu.RUnlock()
	if size != 1 {
		t.Fatalf("expected expired entry to be swept, cache holds %d entries", size)
	}
}

func TestDeliveryQuoteService_CacheDisabled(t *testing.T) {
	engine := newQuoteEngine(t)
	svc, _, ids, _ := newTestQuoteService(t, engine, 0)
	cmd := QuoteCommand{Snapshot: decodeSnapshot(t, ogunSnapshot)}

	for i := 0; i < 2; i++ {
		result, err := svc.Quote(context.Background(), cmd)
		if err != nil {
			t.Fatalf("Quote error: %v", err)
		}
		if result.Cached {
			t.Fatalf("expected no caching when ttl is zero")
		}
	}
	if ids.n != 2 {
		t.Fatalf("expected 2 generated ids, got %d", ids.n)
	}
}

func TestDeliveryQuoteService_DifferentDaysDoNotShareCache(t *testing.T) {
	engine := newQuoteEngine(t)
	svc, _, _, _ := newTestQuoteService(t, engine, time.Hour)
	snapshot := decodeSnapshot(t, ogunSnapshot)

	if _, err := svc.Quote(context.Background(), QuoteCommand{Snapshot: snapshot}); err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	snapshot.Today = "2024-01-02"
	result, err := svc.Quote(context.Background(), QuoteCommand{Snapshot: snapshot})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if result.Cached {
		t.Fatalf("expected a new quote for a different day")
	}
}

func TestDeliveryQuoteService_Errors(t *testing.T) {
	engine := newQuoteEngine(t, "Lagos", "Ogun", "Oyo")
	svc, _, _, events := newTestQuoteService(t, engine, time.Hour)

	cases := []struct {
		name    string
		body    string
		wantErr []error
	}{
		{
			name:    "unserved destination",
			body:    `{"destination": "Kano", "today": "2024-01-01", "items": [{"productId": "a", "quantity": 1, "weightClass": "Light", "sizeClass": "Small", "baseProductionDays": 1}]}`,
			wantErr: []error{delivery.ErrUnsupportedDestination},
		},
		{
			name:    "unknown destination",
			body:    `{"destination": "Atlantis", "today": "2024-01-01", "items": [{"productId": "a", "quantity": 1, "weightClass": "Light", "sizeClass": "Small", "baseProductionDays": 1}]}`,
			wantErr: []error{delivery.ErrUnsupportedDestination},
		},
		{
			name:    "fractional quantity",
			body:    `{"destination": "Ogun", "today": "2024-01-01", "items": [{"productId": "a", "quantity": 2.5, "weightClass": "Light", "sizeClass": "Small", "baseProductionDays": 1}]}`,
			wantErr: []error{ErrQuoteInvalidInput, delivery.ErrInvalidQuantity},
		},
		{
			name:    "zero quantity",
			body:    `{"destination": "Ogun", "today": "2024-01-01", "items": [{"productId": "a", "quantity": 0, "weightClass": "Light", "sizeClass": "Small", "baseProductionDays": 1}]}`,
			wantErr: []error{delivery.ErrInvalidQuantity},
		},
		{
			name:    "incompatible classes",
			body:    `{"destination": "Ogun", "today": "2024-01-01", "items": [{"productId": "a", "quantity": 1, "weightClass": "VeryLight", "sizeClass": "Large", "baseProductionDays": 1}]}`,
			wantErr: []error{delivery.ErrIncompatibleWeightSize},
		},
		{
			name:    "missing production days",
			body:    `{"destination": "Ogun", "today": "2024-01-01", "items": [{"productId": "a", "quantity": 1, "weightClass": "Light", "sizeClass": "Small"}]}`,
			wantErr: []error{delivery.ErrUnknownProduct},
		},
		{
			name:    "production days beyond horizon",
			body:    `{"destination": "Ogun", "today": "2024-01-01", "items": [{"productId": "a", "quantity": 4, "weightClass": "Light", "sizeClass": "Small", "baseProductionDays": 4611686018427387904}]}`,
			wantErr: []error{delivery.ErrInvalidLineItem},
		},
		{
			name:    "empty cart",
			body:    `{"destination": "Ogun", "today": "2024-01-01", "items": []}`,
			wantErr: []error{delivery.ErrEmptyCart},
		},
		{
			name:    "missing classes",
			body:    `{"destination": "Ogun", "today": "2024-01-01", "items": [{"productId": "a", "quantity": 1}]}`,
			wantErr: []error{ErrQuoteInvalidInput, delivery.ErrInvalidLineItem},
		},
		{
			name:    "bad date",
			body:    `{"destination": "Ogun", "today": "01/02/2024", "items": [{"productId": "a", "quantity": 1, "weightClass": "Light", "sizeClass": "Small", "baseProductionDays": 1}]}`,
			wantErr: []error{ErrQuoteInvalidInput},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Quote(context.Background(), QuoteCommand{Snapshot: decodeSnapshot(t, tc.body)})
			if err == nil {
				t.Fatalf("expected error")
			}
			for _, want := range tc.wantErr {
				if !errors.Is(err, want) {
					t.Fatalf("expected %v in chain, got %v", want, err)
				}
			}
		})
	}

	if _, ok := events.find("delivery_quote.resolve_failed"); !ok {
		t.Fatalf("expected resolve failure to be logged")
	}
}

func TestDecodeCartSnapshot_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"destination": "Ogun", "coupon": "X", "items": []}`,
		"unknown class": `{"destination": "Ogun", "items": [{"productId": "a", "quantity": 1, "weightClass": "Enormous", "sizeClass": "Small"}]}`,
		"trailing data": `{"destination": "Ogun", "items": []} {}`,
		"not json":      `destination: Ogun`,
		"bad quantity":  `{"destination": "Ogun", "items": [{"productId": "a", "quantity": "two", "weightClass": "Light", "sizeClass": "Small"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeCartSnapshot(strings.NewReader(body)); !errors.Is(err, ErrQuoteInvalidInput) {
				t.Fatalf("expected ErrQuoteInvalidInput, got %v", err)
			}
		})
	}
}

func TestCartSnapshot_DateDefaultsToLocalToday(t *testing.T) {
	wat := time.FixedZone("WAT", int(time.Hour/time.Second))
	now := time.Date(2024, time.January, 1, 23, 30, 0, 0, time.UTC)

	got, err := CartSnapshot{}.Date(wat, now)
	if err != nil {
		t.Fatalf("Date error: %v", err)
	}
	want := time.Date(2024, time.January, 2, 0, 0, 0, 0, wat)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNewDeliveryQuoteService_RequiresEngine(t *testing.T) {
	engine := newQuoteEngine(t)

	cases := map[string]DeliveryQuoteServiceDeps{
		"zones":     {Fees: engine.fees, Scheduler: engine.scheduler, Area: engine.area},
		"fees":      {Zones: engine.zones, Scheduler: engine.scheduler, Area: engine.area},
		"scheduler": {Zones: engine.zones, Fees: engine.fees, Area: engine.area},
		"warehouse": {Zones: engine.zones, Fees: engine.fees, Scheduler: engine.scheduler},
	}
	for name, deps := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewDeliveryQuoteService(deps); err == nil {
				t.Fatalf("expected error when %s is missing", name)
			}
		})
	}

	svc, err := NewDeliveryQuoteService(DeliveryQuoteServiceDeps{
		Zones: engine.zones, Fees: engine.fees, Scheduler: engine.scheduler, Area: engine.area,
	})
	if err != nil {
		t.Fatalf("NewDeliveryQuoteService error: %v", err)
	}
	result, err := svc.Quote(context.Background(), QuoteCommand{Snapshot: decodeSnapshot(t, ogunSnapshot)})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if len(result.Quote.ID) != 26 {
		t.Fatalf("expected a ULID quote id, got %q", result.Quote.ID)
	}
}
