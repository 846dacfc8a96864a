package logging

import (
	"context"
	"log/slog"
)

// MultiHandler mirrors each record to every sink it wraps. It carries the
// stderr console handler alongside the journal handler so a single module
// logger feeds both.
type MultiHandler struct {
	sinks []slog.Handler
}

// NewMultiHandler wraps the given sinks. Records reach only the sinks whose
// own level admits them.
func NewMultiHandler(sinks ...slog.Handler) *MultiHandler {
	return &MultiHandler{sinks: sinks}
}

// Enabled reports whether at least one sink would accept the level.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range m.sinks {
		if sink.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to each accepting sink. Records are cloned
// because sinks may retain them past the call.
func (m *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, sink := range m.sinks {
		if sink.Enabled(ctx, record.Level) {
			_ = sink.Handle(ctx, record.Clone())
		}
	}
	return nil
}

// WithAttrs returns a fan-out over the sinks with attrs applied.
func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sinks := make([]slog.Handler, len(m.sinks))
	for i, sink := range m.sinks {
		sinks[i] = sink.WithAttrs(attrs)
	}
	return &MultiHandler{sinks: sinks}
}

// WithGroup returns a fan-out over the sinks with the group opened.
func (m *MultiHandler) WithGroup(name string) slog.Handler {
	sinks := make([]slog.Handler, len(m.sinks))
	for i, sink := range m.sinks {
		sinks[i] = sink.WithGroup(name)
	}
	return &MultiHandler{sinks: sinks}
}
