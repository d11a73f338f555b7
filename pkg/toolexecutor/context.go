package toolexecutor

import "context"

// ExecutionContext tells a handler which call it is serving
type ExecutionContext struct {
	ToolName string
	Attempt  int
}

type execContextKey struct{}

// ContextWithExecContext attaches the execution context for tool handlers
func ContextWithExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext extracts the execution context, or nil
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	if execCtx, ok := ctx.Value(execContextKey{}).(*ExecutionContext); ok {
		return execCtx
	}
	return nil
}
