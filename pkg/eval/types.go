// Package eval runs suites of agent tasks and scores their results against
// CEL success criteria.
package eval

import (
	"context"
	"time"

	"github.com/harun/stepwise/pkg/agent"
)

const (
	defaultMaxSteps = 10
	defaultTimeout  = 60 * time.Second
)

// AgentFunc runs the agent for one goal
type AgentFunc func(ctx context.Context, goal string, maxSteps int) (*agent.RunResult, error)

// Task is a single evaluation task. Criteria is a CEL expression over
// result (string), status (string) and steps (int).
type Task struct {
	ID          string        `json:"id" yaml:"id"`
	Description string        `json:"description" yaml:"description"`
	Goal        string        `json:"goal" yaml:"goal"`
	Criteria    string        `json:"criteria,omitempty" yaml:"criteria"`
	MaxSteps    int           `json:"max_steps" yaml:"max_steps"`
	Timeout     time.Duration `json:"timeout" yaml:"-"`
}

// Suite is a named collection of tasks
type Suite struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Tasks       []Task `json:"tasks" yaml:"tasks"`
}

// Result is the outcome of one task
type Result struct {
	TaskID        string                 `json:"task_id"`
	Success       bool                   `json:"success"`
	Score         float64                `json:"score"`
	ExecutionTime float64                `json:"execution_time"`
	Output        string                 `json:"output"`
	Error         string                 `json:"error,omitempty"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// SuiteResult aggregates the results of a suite run
type SuiteResult struct {
	SuiteName            string   `json:"suite_name"`
	SuiteDescription     string   `json:"suite_description"`
	TotalTasks           int      `json:"total_tasks"`
	SuccessfulTasks      int      `json:"successful_tasks"`
	SuccessRate          float64  `json:"success_rate"`
	AverageScore         float64  `json:"average_score"`
	TotalExecutionTime   float64  `json:"total_execution_time"`
	AverageExecutionTime float64  `json:"average_execution_time"`
	Results              []Result `json:"results"`

	// File is where the results were saved
	File string `json:"-"`
}
