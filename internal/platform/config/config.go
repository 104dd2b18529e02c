package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"github.com/hanko-field/delivery/internal/delivery"
	"github.com/hanko-field/delivery/internal/domain"
	"github.com/hanko-field/delivery/internal/platform/regions"
)

const (
	defaultEnvFile         = ".env"
	defaultWarehouseRegion = "Lagos"
	defaultQuoteCacheTTL   = 5 * time.Minute
	defaultTimezone        = "Africa/Lagos"
	defaultLogLevel        = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Regions RegionConfig
	Pricing delivery.PricingConfig
	Quote   QuoteConfig
	Log     LogConfig
}

// RegionConfig describes where orders ship from and which regions are served.
type RegionConfig struct {
	// File is the YAML region table; empty selects the embedded table.
	File           string
	Warehouse      string
	ServiceRegions []string

	Table delivery.RegionTable
	Area  domain.ServiceArea
}

// QuoteConfig controls the checkout quote service.
type QuoteConfig struct {
	// CacheTTL of zero disables quote caching.
	CacheTTL time.Duration
	Location *time.Location
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises the loader.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the delivery configuration from defaults, .env overrides and environment
// variables (dotenv < OS env < explicit env map), then resolves the service area against the
// region table.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := ctx.Err(); err != nil {
		return Config{}, err
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	p := &parser{lookup: lookup}
	defaults := delivery.DefaultPricingConfig()

	cfg := Config{
		Regions: RegionConfig{
			File:           stringWithDefault(lookup, "DELIVERY_REGIONS_FILE", ""),
			Warehouse:      stringWithDefault(lookup, "DELIVERY_WAREHOUSE_REGION", defaultWarehouseRegion),
			ServiceRegions: csvWithDefault(lookup, "DELIVERY_SERVICE_REGIONS"),
		},
		Pricing: delivery.PricingConfig{
			BaseFee:        p.decimal("DELIVERY_BASE_FEE", defaults.BaseFee),
			FeePerKm:       p.decimal("DELIVERY_FEE_PER_KM", defaults.FeePerKm),
			WeightFee:      p.decimal("DELIVERY_WEIGHT_FEE", defaults.WeightFee),
			SizeFee:        p.decimal("DELIVERY_SIZE_FEE", defaults.SizeFee),
			HeavyThreshold: defaults.HeavyThreshold,
			RateScaleCap:   defaults.RateScaleCap,
		},
		Quote: QuoteConfig{
			CacheTTL: p.duration("DELIVERY_QUOTE_CACHE_TTL", defaultQuoteCacheTTL),
			Location: p.location("DELIVERY_TIMEZONE", defaultTimezone),
		},
		Log: LogConfig{
			Level: strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		},
	}

	p.invalid = append(p.invalid, resolveRegions(&cfg.Regions)...)

	if len(p.invalid) > 0 {
		return Config{}, &ValidationError{fields: p.invalid}
	}
	return cfg, nil
}

func resolveRegions(rc *RegionConfig) []string {
	loaded, err := regions.Load(rc.File)
	if err != nil {
		return []string{"DELIVERY_REGIONS_FILE"}
	}
	table, err := delivery.NewRegionTable(loaded)
	if err != nil {
		return []string{"DELIVERY_REGIONS_FILE"}
	}
	rc.Table = table

	var invalid []string
	if _, ok := table.Lookup(rc.Warehouse); !ok {
		invalid = append(invalid, "DELIVERY_WAREHOUSE_REGION")
	}
	for _, name := range rc.ServiceRegions {
		if _, ok := table.Lookup(name); !ok {
			invalid = append(invalid, "DELIVERY_SERVICE_REGIONS")
			break
		}
	}
	if len(invalid) > 0 {
		return invalid
	}

	area, err := delivery.NewServiceArea(table, rc.Warehouse, rc.ServiceRegions)
	if err != nil {
		return []string{"DELIVERY_SERVICE_REGIONS"}
	}
	rc.Area = area
	return nil
}

// parser records every key whose value is present but unparsable.
type parser struct {
	lookup  func(string) (string, bool)
	invalid []string
}

func (p *parser) decimal(key string, fallback decimal.Decimal) decimal.Decimal {
	value, ok := p.lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil || parsed.IsNegative() {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return parsed
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	value, ok := p.lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed < 0 {
		p.invalid = append(p.invalid, key)
		return fallback
	}
	return parsed
}

func (p *parser) location(key, fallback string) *time.Location {
	name := stringWithDefault(p.lookup, key, fallback)
	loc, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		p.invalid = append(p.invalid, key)
		return time.UTC
	}
	return loc
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
