package agent

import (
	"context"
	"time"

	"github.com/harun/stepwise/pkg/action"
	"github.com/harun/stepwise/pkg/memory"
	"github.com/harun/stepwise/pkg/toolexecutor"
)

// Planner chooses the next action for a run
type Planner interface {
	PlanNext(ctx context.Context, state *AgentState, tools []toolexecutor.ToolSpec) (action.Action, error)
}

// PlannerFunc adapts a function to Planner
type PlannerFunc func(ctx context.Context, state *AgentState, tools []toolexecutor.ToolSpec) (action.Action, error)

func (f PlannerFunc) PlanNext(ctx context.Context, state *AgentState, tools []toolexecutor.ToolSpec) (action.Action, error) {
	return f(ctx, state, tools)
}

// ToolRunner executes one tool call. *toolexecutor.Executor implements it.
type ToolRunner interface {
	Execute(ctx context.Context, spec toolexecutor.ToolSpec, args map[string]interface{}) (*toolexecutor.ToolResult, error)
}

// RecordKind identifies a history entry
type RecordKind string

const (
	RecordAction        RecordKind = "action"
	RecordObservation   RecordKind = "observation"
	RecordThought       RecordKind = "thought"
	RecordError         RecordKind = "error"
	RecordConsentDenied RecordKind = "consent_denied"
	RecordFinalResult   RecordKind = "final_result"
)

// StepRecord is one history entry. Step is the entry's own index in
// history; Iteration is the planning iteration that produced it.
type StepRecord struct {
	Step          int                    `json:"step"`
	Iteration     int                    `json:"iteration"`
	Kind          RecordKind             `json:"kind"`
	Action        action.Action          `json:"action,omitempty"`
	Observation   map[string]interface{} `json:"observation,omitempty"`
	Thought       string                 `json:"thought,omitempty"`
	Error         string                 `json:"error,omitempty"`
	ConsentDenied bool                   `json:"consent_denied,omitempty"`
	Operation     string                 `json:"operation,omitempty"`
	FinalResult   string                 `json:"final_result,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Status is the terminal state of a run
type Status string

const (
	StatusFinished Status = "finished"
	StatusMaxSteps Status = "max_steps"
	StatusBlocked  Status = "blocked"
	StatusRejected Status = "rejected"
)

// RunOptions are per-run flags
type RunOptions struct {
	// Interactive overrides the consent policy's interactive flag when set
	Interactive  *bool
	ShowThinking bool
	Quiet        bool
	// OnRecord is called after every history append
	OnRecord func(StepRecord)
}

// RunResult is returned on every terminal transition
type RunResult struct {
	TraceID       string         `json:"trace_id"`
	Result        string         `json:"result"`
	Status        Status         `json:"status"`
	History       []StepRecord   `json:"history"`
	MemorySummary memory.Context `json:"memory_summary"`
	Iterations    int            `json:"iterations"`
	Duration      time.Duration  `json:"duration"`
}
