package agent

import (
	"context"
	"time"

	"github.com/harun/stepwise/pkg/memory"
)

// AgentState is the per-run state handed to the planner. History is
// append-only and only the runner appends to it.
type AgentState struct {
	Goal        string
	TraceID     string
	TokenBudget int

	history       []StepRecord
	store         memory.Store
	memoryContext memory.Context
}

func newAgentState(goal, traceID string, store memory.Store, tokenBudget int) *AgentState {
	return &AgentState{
		Goal:        goal,
		TraceID:     traceID,
		TokenBudget: tokenBudget,
		history:     []StepRecord{},
		store:       store,
	}
}

// NewAgentState creates a standalone state, for planners exercised outside a run
func NewAgentState(goal string, store memory.Store, history ...StepRecord) *AgentState {
	s := newAgentState(goal, "", store, 0)
	for _, rec := range history {
		s.record(rec)
	}
	return s
}

// History returns a copy of the history
func (s *AgentState) History() []StepRecord {
	out := make([]StepRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of history entries
func (s *AgentState) Len() int {
	return len(s.history)
}

// Recent returns up to n trailing history entries
func (s *AgentState) Recent(n int) []StepRecord {
	if n <= 0 || n >= len(s.history) {
		return s.History()
	}
	out := make([]StepRecord, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// MemoryContext returns the memory snapshot fetched for the current iteration
func (s *AgentState) MemoryContext() memory.Context {
	return s.memoryContext
}

// record appends rec, assigning its step index
func (s *AgentState) record(rec StepRecord) StepRecord {
	rec.Step = len(s.history)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.history = append(s.history, rec)
	return rec
}

// countDenials counts consent denials for operation among the trailing window entries
func (s *AgentState) countDenials(operation string, window int) int {
	count := 0
	for _, rec := range s.Recent(window) {
		if rec.Kind == RecordConsentDenied && rec.Operation == operation {
			count++
		}
	}
	return count
}

// Remember writes to the run's memory store
func (s *AgentState) Remember(ctx context.Context, content string, kind memory.Kind, metadata map[string]interface{}) (string, error) {
	if s.store == nil {
		return "", nil
	}
	return s.store.Remember(ctx, content, kind, metadata)
}

// Recall reads from the run's memory store
func (s *AgentState) Recall(ctx context.Context, query string, kind memory.Kind, topK int) ([]memory.Item, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Recall(ctx, query, kind, topK)
}

// Context returns a grouped memory snapshot for query
func (s *AgentState) Context(ctx context.Context, query string, maxItems int) (memory.Context, error) {
	if s.store == nil {
		return memory.Context{Working: map[string]string{}}, nil
	}
	return s.store.GetContext(ctx, query, maxItems)
}
