// Command quote prints the delivery quote for a cart snapshot read from a file or stdin.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/delivery/internal/delivery"
	"github.com/hanko-field/delivery/internal/domain"
	"github.com/hanko-field/delivery/internal/platform/config"
	"github.com/hanko-field/delivery/internal/platform/observability"
	"github.com/hanko-field/delivery/internal/services"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "quote: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, opts ...config.Option) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	var (
		envFile      string
		snapshotPath string
	)
	fs.StringVar(&envFile, "env", ".env", "dotenv file with local overrides")
	fs.StringVar(&snapshotPath, "snapshot", "-", "cart snapshot JSON file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(ctx, append([]config.Option{config.WithEnvFile(envFile)}, opts...)...)
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			return fmt.Errorf("invalid configuration: %v", validation.Fields())
		}
		return err
	}

	baseLogger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("quote")
	ctx = observability.WithLogger(ctx, logger)

	svc, err := newQuoteService(cfg, logger)
	if err != nil {
		return err
	}

	snapshot, err := readSnapshot(snapshotPath, stdin)
	if err != nil {
		return err
	}

	result, err := svc.Quote(ctx, services.QuoteCommand{Snapshot: snapshot})
	if err != nil {
		logger.Info("quote rejected", zap.Error(err))
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(newQuoteView(result.Quote))
}

func newQuoteService(cfg config.Config, logger *zap.Logger) (*services.DeliveryQuoteService, error) {
	zones := delivery.NewZoneResolver(cfg.Regions.Table)
	fees, err := delivery.NewFeeCalculator(zones, cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("initialise fee calculator: %w", err)
	}
	scheduler, err := delivery.NewScheduler(zones)
	if err != nil {
		return nil, fmt.Errorf("initialise scheduler: %w", err)
	}
	return services.NewDeliveryQuoteService(services.DeliveryQuoteServiceDeps{
		Zones:     zones,
		Fees:      fees,
		Scheduler: scheduler,
		Area:      cfg.Regions.Area,
		Location:  cfg.Quote.Location,
		CacheTTL:  cfg.Quote.CacheTTL,
		Logger:    observability.NewEventLogger(logger),
	})
}

func readSnapshot(path string, stdin io.Reader) (services.CartSnapshot, error) {
	if path == "" || path == "-" {
		return services.DecodeCartSnapshot(stdin)
	}
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return services.CartSnapshot{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()
	return services.DecodeCartSnapshot(file)
}

type quoteView struct {
	ID          string  `json:"id"`
	Destination string  `json:"destination"`
	Zone        string  `json:"zone"`
	DistanceKm  float64 `json:"distanceKm"`
	Fee         string  `json:"fee"`
	Earliest    string  `json:"earliest"`
	Latest      string  `json:"latest"`
	TotalDays   int     `json:"totalDays"`
	QuotedAt    string  `json:"quotedAt"`
}

func newQuoteView(q domain.DeliveryQuote) quoteView {
	return quoteView{
		ID:          q.ID,
		Destination: q.Destination,
		Zone:        string(q.Zone),
		DistanceKm:  float64(int(q.DistanceKm*10+0.5)) / 10,
		Fee:         q.Fee.Amount.StringFixed(0),
		Earliest:    q.Estimate.Earliest.Format(time.DateOnly),
		Latest:      q.Estimate.Latest.Format(time.DateOnly),
		TotalDays:   q.Estimate.TotalDays,
		QuotedAt:    q.QuotedAt.Format(time.RFC3339),
	}
}
