package observability

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	// CorrelationIDKey carries the request correlation ID; forwarded upstream as X-Correlation-ID.
	CorrelationIDKey contextKey = "correlation_id"
	// LoggerKey carries a request-scoped *zap.Logger.
	LoggerKey contextKey = "logger"
)

// WithCorrelationID returns ctx carrying id and a logger annotated with it.
func WithCorrelationID(ctx context.Context, logger *zap.Logger, id string) context.Context {
	ctx = context.WithValue(ctx, CorrelationIDKey, id)
	if logger != nil {
		ctx = context.WithValue(ctx, LoggerKey, logger.With(zap.String("correlation_id", id)))
	}
	return ctx
}

// CorrelationID returns the correlation ID stored in ctx, or "".
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return v
	}
	return ""
}

// LoggerFromContext returns the request logger, or fallback when none is set.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(LoggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}
