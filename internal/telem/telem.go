// Package telem ties logs to traces, so the two can be cross-referenced when
// diagnosing a slow or failing sink.
package telem

import (
	"context"

	kitlog "github.com/go-kit/kit/log"
	"go.opencensus.io/trace"
)

// StartSpan opens a named span and returns a logger decorated with its trace
// ID. When no tracing is configured the logger passes through untouched; no
// point annotating it with a nil trace ID.
func StartSpan(ctx context.Context, logger kitlog.Logger, name string) (context.Context, *trace.Span, kitlog.Logger) {
	ctx, span := trace.StartSpan(ctx, name)
	if span == nil {
		return ctx, span, logger
	}

	return ctx, span, kitlog.With(logger,
		"trace_id", span.SpanContext().TraceID)
}
