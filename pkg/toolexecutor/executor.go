package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/stepwise/internal/observability"
	"github.com/harun/stepwise/internal/tracing"
	"github.com/harun/stepwise/pkg/safety"
	"github.com/harun/stepwise/pkg/sandbox"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxAttempts = 2
	defaultBaseBackoff = 300 * time.Millisecond
	defaultMaxBackoff  = 1200 * time.Millisecond
	defaultMaxOutput   = 10 * 1024
)

// Limiter applies resource ceilings before a handler runs
type Limiter interface {
	Apply() error
}

// Options configures an Executor. Zero values take the defaults.
type Options struct {
	DefaultTimeout time.Duration
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	MaxOutputBytes int
	Limiter        Limiter
}

// ToolResult is the outcome of one Execute call
type ToolResult struct {
	Success   bool                   `json:"success"`
	Output    interface{}            `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Blocked   bool                   `json:"blocked,omitempty"`
	Truncated bool                   `json:"truncated,omitempty"`
	Attempts  int                    `json:"attempts"`
	Duration  time.Duration          `json:"duration"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Observation converts the result into the map recorded in history
func (r *ToolResult) Observation() map[string]interface{} {
	if r == nil {
		return map[string]interface{}{"error": "no result", "blocked": false}
	}
	if !r.Success {
		return map[string]interface{}{"error": r.Error, "blocked": r.Blocked}
	}
	if m, ok := r.Output.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"result": r.Output}
}

// Executor runs tool handlers with validation, timeouts and retries
type Executor struct {
	opts Options
}

// NewExecutor creates an executor
func NewExecutor(opts Options) *Executor {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = defaultMaxOutput
	}
	return &Executor{opts: opts}
}

// Execute validates args and runs the tool's handler. Blocked calls and
// timeouts return a blocked result with a nil error; an error is returned
// only when every attempt failed unexpectedly.
func (e *Executor) Execute(ctx context.Context, spec ToolSpec, args map[string]interface{}) (*ToolResult, error) {
	if args == nil {
		args = map[string]interface{}{}
	}

	ctx, span := tracing.StartAgentSpan(tracing.WithTool(ctx, spec.Name), "tool.execute",
		attribute.String("tool.name", spec.Name))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()

	if err := e.validateArgs(spec, args); err != nil {
		logger.Warn().Err(err).Msg("Tool arguments rejected")
		return e.blocked(ctx, spec, start, 0, "validation", err.Error()), nil
	}

	if e.opts.Limiter != nil {
		if err := e.opts.Limiter.Apply(); err != nil {
			logger.Warn().Err(err).Msg("Failed to apply resource limits")
		}
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}

	var lastErr error
	attempt := 0
	for attempt < e.opts.MaxAttempts {
		attempt++

		if attempt > 1 {
			observability.RecordToolRetry(spec.Name)
			if err := sleepContext(ctx, e.backoff(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		output, err := e.runOnce(ctx, spec, args, timeout, attempt)
		if err == nil {
			return e.success(ctx, spec, start, attempt, output), nil
		}

		if errors.Is(err, errTimeout) {
			msg := fmt.Sprintf("Security violation: tool execution timed out after %s", timeout)
			logger.Warn().Dur("timeout", timeout).Msg("Tool execution timed out")
			return e.blocked(ctx, spec, start, attempt, "timeout", msg), nil
		}

		if isBlockedError(err) {
			logger.Warn().Err(err).Msg("Tool execution blocked")
			return e.blocked(ctx, spec, start, attempt, "policy", err.Error()), nil
		}

		lastErr = err
		logger.Warn().Err(err).Int("attempt", attempt).Msg("Tool attempt failed")

		if ctx.Err() != nil {
			break
		}
	}

	duration := time.Since(start)
	observability.RecordToolExecution(spec.Name, duration, false)
	observability.AuditToolCall(ctx, spec.Name, "error", map[string]interface{}{
		"attempts": attempt,
		"error":    lastErr.Error(),
	})
	span.RecordError(lastErr)

	return nil, fmt.Errorf("tool %s failed after %d attempt(s): %w", spec.Name, attempt, lastErr)
}

func (e *Executor) validateArgs(spec ToolSpec, args map[string]interface{}) error {
	schema := spec.schema
	if schema == nil {
		compiled, err := compileSchema(spec)
		if err != nil {
			return err
		}
		schema = compiled
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("parameter validation failed: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("parameter validation failed: %s", joinSchemaErrors(result.Errors()))
	}

	if spec.Validator != nil {
		if err := spec.Validator(args); err != nil {
			return fmt.Errorf("argument validation failed: %w", err)
		}
	}
	return nil
}

func joinSchemaErrors(errs []gojsonschema.ResultError) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.String())
	}
	return strings.Join(msgs, "; ")
}

type handlerOutcome struct {
	output interface{}
	err    error
}

// runOnce runs the handler in a goroutine and waits for it or the deadline
func (e *Executor) runOnce(ctx context.Context, spec ToolSpec, args map[string]interface{}, timeout time.Duration, attempt int) (interface{}, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handlerCtx := ContextWithExecContext(timeoutCtx, &ExecutionContext{ToolName: spec.Name, Attempt: attempt})

	done := make(chan handlerOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerOutcome{err: fmt.Errorf("tool %s panicked: %v", spec.Name, r)}
			}
		}()
		output, err := spec.Handler(handlerCtx, args)
		done <- handlerOutcome{output: output, err: err}
	}()

	select {
	case outcome := <-done:
		return outcome.output, outcome.err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errTimeout
	}
}

func (e *Executor) backoff(retry int) time.Duration {
	d := e.opts.BaseBackoff << (retry - 1)
	if d > e.opts.MaxBackoff || d <= 0 {
		d = e.opts.MaxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isBlockedError(err error) bool {
	return errors.Is(err, ErrBlocked) ||
		errors.Is(err, sandbox.ErrCommandBlocked) ||
		errors.Is(err, sandbox.ErrFilesystemAccessDenied) ||
		errors.Is(err, sandbox.ErrShellSyntax) ||
		errors.Is(err, safety.ErrBlocked)
}

func (e *Executor) success(ctx context.Context, spec ToolSpec, start time.Time, attempts int, output interface{}) *ToolResult {
	duration := time.Since(start)
	output, truncated := e.truncateOutput(output)

	observability.RecordToolExecution(spec.Name, duration, true)
	observability.AuditToolCall(ctx, spec.Name, "success", map[string]interface{}{
		"attempts":  attempts,
		"truncated": truncated,
	})

	log.Debug().
		Str("tool", spec.Name).
		Dur("duration", duration).
		Int("attempts", attempts).
		Bool("truncated", truncated).
		Msg("Tool execution completed")

	return &ToolResult{
		Success:   true,
		Output:    output,
		Truncated: truncated,
		Attempts:  attempts,
		Duration:  duration,
		Metadata: map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		},
	}
}

func (e *Executor) blocked(ctx context.Context, spec ToolSpec, start time.Time, attempts int, reason, msg string) *ToolResult {
	duration := time.Since(start)

	observability.RecordToolBlocked(spec.Name, reason)
	observability.RecordToolExecution(spec.Name, duration, false)
	observability.AuditToolCall(ctx, spec.Name, "blocked", map[string]interface{}{
		"reason": reason,
		"error":  msg,
	})

	return &ToolResult{
		Success:  false,
		Error:    msg,
		Blocked:  true,
		Attempts: attempts,
		Duration: duration,
		Metadata: map[string]interface{}{
			"reason": reason,
		},
	}
}

// truncateOutput caps the JSON size of an output. Oversized outputs are
// replaced by a truncated JSON string.
func (e *Executor) truncateOutput(output interface{}) (interface{}, bool) {
	data, err := json.Marshal(output)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", output))
	}
	if len(data) <= e.opts.MaxOutputBytes {
		return output, false
	}

	log.Warn().
		Int("original", len(data)).
		Int("truncated", e.opts.MaxOutputBytes).
		Msg("Output truncated")

	cut := strings.ToValidUTF8(string(data[:e.opts.MaxOutputBytes]), "")
	return map[string]interface{}{
		"result":    cut + "\n... [output truncated]",
		"truncated": true,
	}, true
}
