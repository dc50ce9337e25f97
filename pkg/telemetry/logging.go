// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// ConfigureSlog installs the process-wide logger used by every praxis
// component. Records logged inside a turn or task span carry trace_id and
// span_id, so a turn's engine, gateway, and ledger events line up under one
// trace in the collector.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var base slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base = slog.NewJSONHandler(output, opts)
	} else {
		base = slog.NewTextHandler(output, opts)
	}

	logger := slog.New(&spanCorrelationHandler{next: base})
	slog.SetDefault(logger)
	return logger
}

// spanCorrelationHandler stamps each record with the ids of the active span.
// Explicit trace_id or span_id attrs on the record win over the injected
// ones.
type spanCorrelationHandler struct {
	next slog.Handler
}

func (h *spanCorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *spanCorrelationHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := spanContextFrom(ctx); sc.IsValid() {
		if !recordHasAttr(record, "trace_id") {
			record.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
		}
		if !recordHasAttr(record, "span_id") {
			record.AddAttrs(slog.String("span_id", sc.SpanID().String()))
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *spanCorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spanCorrelationHandler{next: h.next.WithAttrs(attrs)}
}

func (h *spanCorrelationHandler) WithGroup(name string) slog.Handler {
	return &spanCorrelationHandler{next: h.next.WithGroup(name)}
}

func spanContextFrom(ctx context.Context) trace.SpanContext {
	if ctx == nil {
		return trace.SpanContext{}
	}
	return trace.SpanFromContext(ctx).SpanContext()
}

// parseLogLevel maps the log.level config key to a slog level. Unknown
// values fall back to info rather than failing startup.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func recordHasAttr(record slog.Record, key string) bool {
	found := false
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			found = true
			return false
		}
		return true
	})
	return found
}
