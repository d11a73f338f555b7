package observability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/stepwise/internal/tracing"
)

// AuditKind groups audit entries
type AuditKind string

const (
	KindTool     AuditKind = "tool"
	KindConsent  AuditKind = "consent"
	KindSecurity AuditKind = "security"
)

// AuditEntry is one JSONL line of the audit trail
type AuditEntry struct {
	Kind    AuditKind
	Time    time.Time
	Subject string // tool name, consent operation or security event
	Outcome string // success, error, blocked, approved, denied
	Fields  map[string]interface{}
}

// AuditTrail appends entries for the current process to a file. Each line
// carries the run's trace ID and step, taken from the context.
type AuditTrail struct {
	mu   sync.Mutex
	out  zerolog.Logger
	file *os.File
}

var trail atomic.Pointer[AuditTrail]

// OpenAuditTrail sends audit entries to path. Entries recorded while no
// trail is open are dropped.
func OpenAuditTrail(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}

	next := &AuditTrail{out: zerolog.New(file), file: file}
	if prev := trail.Swap(next); prev != nil {
		_ = prev.close()
	}
	return nil
}

// CloseAuditTrail detaches and closes the open trail, if any
func CloseAuditTrail() error {
	if prev := trail.Swap(nil); prev != nil {
		return prev.close()
	}
	return nil
}

func (t *AuditTrail) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

// Audit records an entry on the open trail and as an event on the
// active span.
func Audit(ctx context.Context, entry AuditEntry) {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(string(entry.Kind)+":"+entry.Subject, trace.WithAttributes(
			attribute.String("audit.outcome", entry.Outcome),
		))
	}

	t := trail.Load()
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	line := t.out.Log().
		Time("time", entry.Time).
		Str("kind", string(entry.Kind)).
		Str("subject", entry.Subject).
		Str("outcome", entry.Outcome)
	if runID := tracing.GetTraceID(ctx); runID != "" {
		line = line.Str("run_id", runID)
	}
	if step, ok := tracing.GetStep(ctx); ok {
		line = line.Int("step", step)
	}
	if sc := span.SpanContext(); sc.IsValid() {
		line = line.Str("otel_trace_id", sc.TraceID().String())
	}
	if len(entry.Fields) > 0 {
		line = line.Fields(entry.Fields)
	}
	line.Send()
}

// AuditToolCall records the final outcome of a tool execution
func AuditToolCall(ctx context.Context, tool, outcome string, fields map[string]interface{}) {
	Audit(ctx, AuditEntry{Kind: KindTool, Subject: tool, Outcome: outcome, Fields: fields})
}

// AuditConsent records a consent decision along with the rule that made it
func AuditConsent(ctx context.Context, operation, decision, source string, fields map[string]interface{}) {
	outcome := "denied"
	switch decision {
	case "allow", "allow_all", "allow_session":
		outcome = "approved"
	}
	merged := map[string]interface{}{"decision": decision, "source": source}
	for k, v := range fields {
		merged[k] = v
	}
	Audit(ctx, AuditEntry{Kind: KindConsent, Subject: operation, Outcome: outcome, Fields: merged})
}

// AuditSecurity records a guardrail event such as a rejected goal
func AuditSecurity(ctx context.Context, event, outcome string, fields map[string]interface{}) {
	Audit(ctx, AuditEntry{Kind: KindSecurity, Subject: event, Outcome: outcome, Fields: fields})
}
