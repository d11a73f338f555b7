package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/stepwise/pkg/agent"
)

const timeoutMessage = "Task timed out"

// Options configures an Evaluator
type Options struct {
	// OutputDir receives eval_<suite>_<unix>.json files. Empty disables saving.
	OutputDir string
	Logger    zerolog.Logger
}

// Evaluator runs tasks and suites against an agent
type Evaluator struct {
	opts Options
	now  func() time.Time
}

// NewEvaluator creates an evaluator
func NewEvaluator(opts Options) *Evaluator {
	return &Evaluator{opts: opts, now: time.Now}
}

type runOutcome struct {
	result *agent.RunResult
	err    error
}

// RunTask runs a single task under its timeout and scores it
func (e *Evaluator) RunTask(ctx context.Context, task Task, fn AgentFunc) Result {
	maxSteps := task.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	res := Result{
		TaskID:   task.ID,
		Metadata: map[string]interface{}{"task_description": task.Description},
	}

	var criteria *Criteria
	if task.Criteria != "" {
		c, err := CompileCriteria(task.Criteria)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		criteria = c
	}

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.now()
	done := make(chan runOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		run, err := fn(taskCtx, task.Goal, maxSteps)
		done <- runOutcome{result: run, err: err}
	}()

	var outcome runOutcome
	select {
	case outcome = <-done:
	case <-taskCtx.Done():
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			res.ExecutionTime = timeout.Seconds()
			res.Error = timeoutMessage
		} else {
			res.ExecutionTime = e.now().Sub(start).Seconds()
			res.Error = taskCtx.Err().Error()
		}
		return res
	}
	res.ExecutionTime = e.now().Sub(start).Seconds()

	if outcome.err != nil {
		res.Error = outcome.err.Error()
		return res
	}

	run := outcome.result
	if run != nil {
		res.Output = run.Result
		res.Metadata["status"] = string(run.Status)
		res.Metadata["steps"] = run.Iterations
		res.Metadata["trace_id"] = run.TraceID
	}

	if criteria == nil {
		res.Success = run != nil && run.Status != agent.StatusRejected
	} else {
		ok, err := criteria.Eval(run)
		if err != nil {
			e.opts.Logger.Warn().Err(err).Str("task", task.ID).Msg("Success criteria failed")
		}
		res.Success = ok
	}
	if res.Success {
		res.Score = 1
	}
	return res
}

// RunSuite runs every task in order and saves the aggregated result
func (e *Evaluator) RunSuite(ctx context.Context, suite Suite, fn AgentFunc) (*SuiteResult, error) {
	e.opts.Logger.Info().Str("suite", suite.Name).Int("tasks", len(suite.Tasks)).Msg("Running evaluation suite")

	out := &SuiteResult{
		SuiteName:        suite.Name,
		SuiteDescription: suite.Description,
		TotalTasks:       len(suite.Tasks),
		Results:          make([]Result, 0, len(suite.Tasks)),
	}

	var totalScore float64
	for i, task := range suite.Tasks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.opts.Logger.Info().Str("task", task.ID).Msgf("Running task %d/%d", i+1, len(suite.Tasks))

		res := e.RunTask(ctx, task, fn)
		out.Results = append(out.Results, res)
		if res.Success {
			out.SuccessfulTasks++
		}
		totalScore += res.Score
		out.TotalExecutionTime += res.ExecutionTime
	}

	if out.TotalTasks > 0 {
		n := float64(out.TotalTasks)
		out.SuccessRate = float64(out.SuccessfulTasks) / n
		out.AverageScore = totalScore / n
		out.AverageExecutionTime = out.TotalExecutionTime / n
	}

	if e.opts.OutputDir != "" {
		path, err := e.save(out)
		if err != nil {
			return out, err
		}
		out.File = path
	}
	return out, nil
}

func (e *Evaluator) save(result *SuiteResult) (string, error) {
	if err := os.MkdirAll(e.opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}

	name := fmt.Sprintf("eval_%s_%d.json", result.SuiteName, e.now().Unix())
	path := filepath.Join(e.opts.OutputDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write results: %w", err)
	}

	e.opts.Logger.Info().Str("file", path).Msg("Saved evaluation results")
	return path, nil
}
