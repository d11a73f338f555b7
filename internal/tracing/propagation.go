package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID == "" && !tc.HasStep && tc.Tool == "" {
		return logger
	}

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.HasStep {
		lc = lc.Int("step", tc.Step)
	}
	if tc.Tool != "" {
		lc = lc.Str("tool", tc.Tool)
	}
	return lc.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing values from source into target where target
// has none. Used when a handler runs under a fresh timeout context.
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if _, ok := GetStep(target); tc.HasStep && !ok {
		target = WithStep(target, tc.Step)
	}
	if tc.Tool != "" && GetTool(target) == "" {
		target = WithTool(target, tc.Tool)
	}

	return target
}
