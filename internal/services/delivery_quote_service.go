package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/hanko-field/delivery/internal/delivery"
	"github.com/hanko-field/delivery/internal/domain"
	"github.com/hanko-field/delivery/internal/platform/requestctx"
)

const instrumentationName = "github.com/hanko-field/delivery/internal/services"

const (
	outcomeOK          = "ok"
	outcomeCacheHit    = "cache_hit"
	outcomeUnsupported = "unsupported_destination"
	outcomeInvalid     = "invalid_input"
	outcomeError       = "error"
)

// DeliveryQuoteService merges the delivery fee and window for a checkout summary.
type DeliveryQuoteService struct {
	zones     *delivery.ZoneResolver
	fees      *delivery.FeeCalculator
	scheduler *delivery.Scheduler
	area      domain.ServiceArea
	location  *time.Location
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	cache     *deliveryQuoteCache
	tracer    trace.Tracer

	requests        metric.Int64Counter
	requestsEnabled bool
	latency         metric.Float64Histogram
	latencyEnabled  bool
}

// DeliveryQuoteServiceDeps wires the engine and ambient dependencies.
type DeliveryQuoteServiceDeps struct {
	Zones     *delivery.ZoneResolver
	Fees      *delivery.FeeCalculator
	Scheduler *delivery.Scheduler
	Area      domain.ServiceArea
	Location  *time.Location
	// CacheTTL of zero or less disables the quote cache.
	CacheTTL    time.Duration
	Now         func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
	Meter       metric.Meter
	Tracer      trace.Tracer
}

func NewDeliveryQuoteService(deps DeliveryQuoteServiceDeps) (*DeliveryQuoteService, error) {
	if deps.Zones == nil {
		return nil, errors.New("delivery quote service: zone resolver is required")
	}
	if deps.Fees == nil {
		return nil, errors.New("delivery quote service: fee calculator is required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("delivery quote service: scheduler is required")
	}
	if strings.TrimSpace(deps.Area.Warehouse) == "" {
		return nil, errors.New("delivery quote service: warehouse region is required")
	}

	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}

	svc := &DeliveryQuoteService{
		zones:     deps.Zones,
		fees:      deps.Fees,
		scheduler: deps.Scheduler,
		area:      deps.Area,
		location:  location,
		now: func() time.Time {
			return now().UTC()
		},
		newID:  newID,
		logger: logger,
		tracer: tracer,
	}
	if deps.CacheTTL > 0 {
		svc.cache = newDeliveryQuoteCache(deps.CacheTTL, svc.now)
	}

	requests, err := meter.Int64Counter(
		"delivery.quote.requests",
		metric.WithDescription("Count of delivery quote requests by outcome"),
	)
	if err != nil {
		logger(context.Background(), "delivery_quote.metric_unavailable", map[string]any{"metric": "delivery.quote.requests", "error": err.Error()})
	}
	svc.requests, svc.requestsEnabled = requests, err == nil

	latency, err := meter.Float64Histogram(
		"delivery.quote.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for computing a delivery quote"),
	)
	if err != nil {
		logger(context.Background(), "delivery_quote.metric_unavailable", map[string]any{"metric": "delivery.quote.latency", "error": err.Error()})
	}
	svc.latency, svc.latencyEnabled = latency, err == nil

	return svc, nil
}

// QuoteCommand asks for a quote of one cart snapshot.
type QuoteCommand struct {
	Snapshot    CartSnapshot
	BypassCache bool
}

// QuoteResult is the merged quote and whether it was served from cache.
type QuoteResult struct {
	Quote  domain.DeliveryQuote
	Cached bool
}

// Quote resolves the destination once and runs the fee calculator and the scheduler
// against the same resolution. Identical snapshots on the same day share a cached quote
// unless BypassCache is set.
func (s *DeliveryQuoteService) Quote(ctx context.Context, cmd QuoteCommand) (result QuoteResult, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "delivery.quote", trace.WithAttributes(
		attribute.String("delivery.destination", strings.TrimSpace(cmd.Snapshot.Destination)),
		attribute.Int("delivery.items", len(cmd.Snapshot.Items)),
	))
	defer func() {
		outcome := outcomeOK
		switch {
		case err != nil:
			outcome = classifyQuoteError(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		case result.Cached:
			outcome = outcomeCacheHit
		}
		s.record(ctx, outcome, started)
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return QuoteResult{}, err
	}

	items, err := cmd.Snapshot.LineItems()
	if err != nil {
		return QuoteResult{}, err
	}
	today, err := cmd.Snapshot.Date(s.location, s.now())
	if err != nil {
		return QuoteResult{}, err
	}

	destination := strings.TrimSpace(cmd.Snapshot.Destination)
	key, keyErr := buildDeliveryQuoteCacheKey(destination, today, items)
	if keyErr != nil {
		s.logger(ctx, "delivery_quote.cache_key_failed", map[string]any{"error": keyErr.Error()})
	}
	cacheable := s.cache != nil && keyErr == nil
	if cacheable && !cmd.BypassCache {
		if cached, ok := s.cache.Get(key); ok {
			s.logger(requestctx.WithQuoteID(ctx, cached.ID), "delivery_quote.cache_hit", map[string]any{
				"destination": cached.Destination,
			})
			return QuoteResult{Quote: cached, Cached: true}, nil
		}
	}

	id := s.newID()
	ctx = requestctx.WithQuoteID(ctx, id)

	resolution, err := s.zones.Resolve(s.area.Warehouse, destination, s.area)
	if err != nil {
		s.logger(ctx, "delivery_quote.resolve_failed", map[string]any{
			"destination": destination,
			"error":       err.Error(),
		})
		return QuoteResult{}, fmt.Errorf("delivery quote: resolve destination: %w", err)
	}
	span.SetAttributes(
		attribute.String("delivery.zone", string(resolution.Zone)),
		attribute.Float64("delivery.distance_km", resolution.DistanceKm),
	)

	fee, err := s.fees.CalculateForResolution(items, resolution)
	if err != nil {
		s.logger(ctx, "delivery_quote.fee_failed", map[string]any{"error": err.Error()})
		return QuoteResult{}, fmt.Errorf("delivery quote: fee: %w", err)
	}
	estimate, err := s.scheduler.EstimateForResolution(items, resolution, today)
	if err != nil {
		s.logger(ctx, "delivery_quote.schedule_failed", map[string]any{"error": err.Error()})
		return QuoteResult{}, fmt.Errorf("delivery quote: schedule: %w", err)
	}

	quote := domain.DeliveryQuote{
		ID:          id,
		Destination: resolution.Destination,
		Zone:        resolution.Zone,
		DistanceKm:  resolution.DistanceKm,
		Fee:         fee,
		Estimate:    estimate,
		QuotedAt:    s.now(),
	}
	if cacheable {
		s.cache.Put(key, quote)
	}

	s.logger(ctx, "delivery_quote.computed", map[string]any{
		"destination": quote.Destination,
		"zone":        string(quote.Zone),
		"distanceKm":  quote.DistanceKm,
		"fee":         quote.Fee.Amount.String(),
		"totalDays":   quote.Estimate.TotalDays,
		"earliest":    quote.Estimate.Earliest.Format(time.DateOnly),
		"latest":      quote.Estimate.Latest.Format(time.DateOnly),
	})
	return QuoteResult{Quote: quote}, nil
}

func (s *DeliveryQuoteService) record(ctx context.Context, outcome string, started time.Time) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if s.requestsEnabled {
		s.requests.Add(ctx, 1, attrs)
	}
	if s.latencyEnabled {
		elapsed := s.now().Sub(started)
		s.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}

func classifyQuoteError(err error) string {
	switch {
	case errors.Is(err, delivery.ErrUnsupportedDestination):
		return outcomeUnsupported
	case errors.Is(err, ErrQuoteInvalidInput),
		errors.Is(err, delivery.ErrEmptyCart),
		errors.Is(err, delivery.ErrInvalidQuantity),
		errors.Is(err, delivery.ErrIncompatibleWeightSize),
		errors.Is(err, delivery.ErrUnknownProduct),
		errors.Is(err, delivery.ErrInvalidLineItem):
		return outcomeInvalid
	default:
		return outcomeError
	}
}

type deliveryQuoteCache struct {
	ttl       time.Duration
	now       func() time.Time
	mu        sync.RWMutex
	m         map[string]deliveryQuoteCacheEntry
	lastSweep time.Time
}

type deliveryQuoteCacheEntry struct {
	quote   domain.DeliveryQuote
	expires time.Time
}

func newDeliveryQuoteCache(ttl time.Duration, now func() time.Time) *deliveryQuoteCache {
	return &deliveryQuoteCache{
		ttl: ttl,
		now: now,
		m:   make(map[string]deliveryQuoteCacheEntry),
	}
}

func (c *deliveryQuoteCache) Get(key string) (domain.DeliveryQuote, bool) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return domain.DeliveryQuote{}, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return domain.DeliveryQuote{}, false
	}
	return entry.quote, true
}

// Put stores the quote and, at most once per TTL, drops every expired entry.
func (c *deliveryQuoteCache) Put(key string, quote domain.DeliveryQuote) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastSweep) >= c.ttl {
		for k, entry := range c.m {
			if now.After(entry.expires) {
				delete(c.m, k)
			}
		}
		c.lastSweep = now
	}
	c.m[key] = deliveryQuoteCacheEntry{quote: quote, expires: now.Add(c.ttl)}
}

type deliveryQuoteCacheKey struct {
	Destination string              `json:"d"`
	Day         string              `json:"t"`
	Lines       []deliveryQuoteLine `json:"l"`
}

type deliveryQuoteLine struct {
	ProductID string `json:"p"`
	Quantity  int    `json:"q"`
	Weight    int    `json:"w"`
	Size      int    `json:"s"`
	BaseDays  *int   `json:"b"`
}

// Line order is kept in the key because production batching depends on first-seen order.
func buildDeliveryQuoteCacheKey(destination string, today time.Time, items []domain.CartLineItem) (string, error) {
	key := deliveryQuoteCacheKey{
		Destination: cases.Fold().String(strings.TrimSpace(destination)),
		Day:         today.Format(time.DateOnly),
		Lines:       make([]deliveryQuoteLine, len(items)),
	}
	for i, item := range items {
		key.Lines[i] = deliveryQuoteLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Weight:    int(item.Weight),
			Size:      int(item.Size),
			BaseDays:  item.BaseProductionDays,
		}
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("delivery quote: cache key: %w", err)
	}
	return string(raw), nil
}
