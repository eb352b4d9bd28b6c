package logging

import (
	"context"
	"log/slog"
)

// teeHandler writes each record to every handler that accepts its level.
type teeHandler struct {
	handlers []slog.Handler
}

// TeeHandler combines handlers; nil entries are ignored.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	kept := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			kept = append(kept, h)
		}
	}
	switch len(kept) {
	case 0:
		return NoopHandler{}
	case 1:
		return kept[0]
	}
	return &teeHandler{handlers: kept}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{handlers: h.each(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{handlers: h.each(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })}
}

func (h *teeHandler) each(fn func(slog.Handler) slog.Handler) []slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = fn(handler)
	}
	return next
}
