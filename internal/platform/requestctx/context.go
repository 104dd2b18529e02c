package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey  contextKey = "github.com/hanko-field/delivery/internal/platform/requestctx/logger"
	quoteIDContextKey contextKey = "github.com/hanko-field/delivery/internal/platform/requestctx/quote_id"
)

var noopLogger = zap.NewNop()

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithQuoteID records the identifier of the quote being computed.
func WithQuoteID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, quoteIDContextKey, id)
}

// QuoteID returns the quote identifier stored on the context, if any.
func QuoteID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(quoteIDContextKey).(string)
	return id
}
