package logging

import (
	"context"
	"log/slog"

	"embysub/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldUserID is the standardized structured logging key for Emby user identifiers.
	FieldUserID = "user_id"
	// FieldRunID identifies a single reconciliation pass.
	FieldRunID = "run_id"
	// FieldRequestID is the subscription request primary key.
	FieldRequestID = "request_id"
	// FieldCatalogID is the TMDB identifier of a title.
	FieldCatalogID = "tmdb_id"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	if uid, ok := services.UserIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldUserID, uid))
	}
	if run, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, run))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
