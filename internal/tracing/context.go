package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for the run's trace ID
	TraceIDKey ContextKey = "trace_id"
	// StepKey is the context key for the current loop iteration
	StepKey ContextKey = "step"
	// ToolKey is the context key for the tool being executed
	ToolKey ContextKey = "tool"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID string
	Step    int
	HasStep bool
	Tool    string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithStep adds the loop iteration to the context
func WithStep(ctx context.Context, step int) context.Context {
	return context.WithValue(ctx, StepKey, step)
}

// WithTool adds the executing tool's name to the context
func WithTool(ctx context.Context, tool string) context.Context {
	return context.WithValue(ctx, ToolKey, tool)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetStep retrieves the loop iteration from the context
func GetStep(ctx context.Context) (int, bool) {
	step, ok := ctx.Value(StepKey).(int)
	return step, ok
}

// GetTool retrieves the tool name from the context
func GetTool(ctx context.Context) string {
	if tool, ok := ctx.Value(ToolKey).(string); ok {
		return tool
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	step, hasStep := GetStep(ctx)
	return &TraceContext{
		TraceID: GetTraceID(ctx),
		Step:    step,
		HasStep: hasStep,
		Tool:    GetTool(ctx),
	}
}

// NewRunContext creates a context for an agent run with a fresh trace ID
func NewRunContext(ctx context.Context) (context.Context, string) {
	traceID := NewTraceID()
	return WithTraceID(ctx, traceID), traceID
}
