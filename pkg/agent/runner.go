package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/harun/stepwise/internal/observability"
	"github.com/harun/stepwise/internal/tracing"
	"github.com/harun/stepwise/pkg/action"
	"github.com/harun/stepwise/pkg/consent"
	"github.com/harun/stepwise/pkg/memory"
	"github.com/harun/stepwise/pkg/safety"
	"github.com/harun/stepwise/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultMaxSteps        = 10
	defaultDenialWindow    = 5
	defaultDenialThreshold = 2
	contextItemsPerStep    = 5
	summaryItems           = 3
	resultNoteLength       = 500
)

// Config holds runner configuration
type Config struct {
	Planner         Planner
	Catalog         *toolexecutor.Catalog
	Executor        ToolRunner
	Validator       *safety.Validator
	Memory          memory.Store
	ConsentPolicy   consent.Policy
	Prompter        consent.Prompter
	MaxSteps        int
	DenialWindow    int
	DenialThreshold int
	TokenBudget     int
	Logger          zerolog.Logger
}

// Runner drives the plan/act loop
type Runner struct {
	cfg Config
}

// NewRunner creates a runner. Planner, Catalog and Memory are required.
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Planner == nil {
		return nil, errors.New("planner is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("tool catalog is required")
	}
	if cfg.Memory == nil {
		return nil, errors.New("memory store is required")
	}
	if cfg.Executor == nil {
		cfg.Executor = toolexecutor.NewExecutor(toolexecutor.Options{})
	}
	if cfg.Validator == nil {
		cfg.Validator = safety.New(safety.DefaultPolicy())
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	if cfg.DenialWindow <= 0 {
		cfg.DenialWindow = defaultDenialWindow
	}
	if cfg.DenialThreshold <= 0 {
		cfg.DenialThreshold = defaultDenialThreshold
	}

	return &Runner{cfg: cfg}, nil
}

// run holds the state of one Run call
type run struct {
	*Runner
	state    *AgentState
	engine   *consent.Engine
	policy   consent.Policy
	opts     RunOptions
	logger   zerolog.Logger
	terminal *RunResult
}

// Run drives the loop for at most maxSteps iterations. It never returns an
// error: every outcome is described by the RunResult.
func (r *Runner) Run(ctx context.Context, goal string, maxSteps int, opts RunOptions) *RunResult {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if maxSteps <= 0 {
		maxSteps = r.cfg.MaxSteps
	}

	ctx, traceID := tracing.NewRunContext(ctx)

	if err := r.cfg.Validator.ValidateInput(goal); err != nil {
		r.cfg.Logger.Warn().Err(err).Msg("Goal rejected")
		observability.AuditSecurity(ctx, "goal_rejected", "denied", map[string]interface{}{
			"error": err.Error(),
		})
		observability.RecordAgentRun(string(StatusRejected), time.Since(start))
		return &RunResult{
			TraceID:       traceID,
			Result:        err.Error(),
			Status:        StatusRejected,
			History:       []StepRecord{},
			MemorySummary: memory.Context{Working: map[string]string{}},
			Duration:      time.Since(start),
		}
	}

	ctx, span := tracing.StartAgentSpan(ctx, "agent.run",
		attribute.String("trace_id", traceID),
		attribute.Int("max_steps", maxSteps),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, r.cfg.Logger)
	if opts.Quiet {
		logger = logger.Level(zerolog.WarnLevel)
	}

	policy := r.cfg.ConsentPolicy
	if opts.Interactive != nil {
		policy.Interactive = *opts.Interactive
	}

	rn := &run{
		Runner: r,
		state:  newAgentState(goal, traceID, r.cfg.Memory, r.cfg.TokenBudget),
		engine: consent.NewEngine(policy, r.cfg.Prompter),
		policy: policy,
		opts:   opts,
		logger: logger,
	}

	logger.Info().Str("goal", goal).Int("max_steps", maxSteps).Msg("Agent run started")
	rn.remember(ctx, "Agent goal: "+goal, memory.Episodic, map[string]interface{}{"trace_id": traceID})

	iterations := 0
	for i := 0; i < maxSteps; i++ {
		iterations++
		if rn.step(ctx, i) {
			break
		}
	}

	result := rn.terminal
	if result == nil {
		result = &RunResult{
			Result: fmt.Sprintf("Task partially completed after %d steps", maxSteps),
			Status: StatusMaxSteps,
		}
		logger.Warn().Int("max_steps", maxSteps).Msg("Step budget exhausted")
	}

	result.TraceID = traceID
	result.History = rn.state.History()
	result.Iterations = iterations
	summary, err := rn.state.Context(ctx, goal, summaryItems)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to build memory summary")
		summary = memory.Context{Working: map[string]string{}}
	}
	result.MemorySummary = summary
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("iterations", iterations),
	)
	if result.Status == StatusBlocked {
		span.SetStatus(codes.Error, "blocked by consent denials")
	}
	observability.RecordAgentRun(string(result.Status), result.Duration)

	logger.Info().
		Str("status", string(result.Status)).
		Int("iterations", iterations).
		Int("records", len(result.History)).
		Dur("duration", result.Duration).
		Msg("Agent run completed")

	return result
}

// step runs one iteration and reports whether the run reached a terminal state
func (rn *run) step(ctx context.Context, i int) (done bool) {
	ctx = tracing.WithStep(ctx, i)
	ctx, span := tracing.StartAgentSpan(ctx, "agent.step", attribute.Int("step", i))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			rn.fail(ctx, i, err)
			done = false
		}
	}()

	if err := rn.iterate(ctx, i); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rn.fail(ctx, i, err)
		return false
	}
	return rn.terminal != nil
}

func (rn *run) iterate(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	goal := rn.state.Goal
	memCtx, err := rn.state.Context(ctx, goal, contextItemsPerStep)
	if err != nil {
		rn.logger.Warn().Err(err).Int("step", i).Msg("Failed to load memory context")
	}
	rn.state.memoryContext = memCtx

	act, err := rn.plan(ctx)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	act, err = rn.cfg.Validator.ValidateAction(act)
	if err != nil {
		rn.logger.Warn().Err(err).Int("step", i).Msg("Action validation failed")
		if errors.Is(err, safety.ErrBlocked) {
			observability.AuditSecurity(ctx, "action_blocked", "blocked", map[string]interface{}{
				"step":  i,
				"error": err.Error(),
			})
		}
		rn.record(StepRecord{Iteration: i, Kind: RecordError, Error: "Action validation failed: " + err.Error()})
		return nil
	}

	rn.record(StepRecord{Iteration: i, Kind: RecordAction, Action: act})
	rn.remember(ctx, fmt.Sprintf("Step %d: %s", i, action.Describe(act)), memory.Episodic, map[string]interface{}{"step": i})

	switch a := act.(type) {
	case action.Think:
		rn.think(ctx, i, a)
	case action.Tool:
		return rn.invoke(ctx, i, a)
	case action.Finish:
		rn.finish(ctx, i, a)
	}
	return nil
}

func (rn *run) plan(ctx context.Context) (action.Action, error) {
	ctx, span := tracing.StartAgentSpan(ctx, "planner.plan")
	defer span.End()

	act, err := rn.cfg.Planner.PlanNext(ctx, rn.state, rn.cfg.Catalog.List())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if act != nil {
		span.SetAttributes(attribute.String("action", string(act.Kind())))
	}
	return act, nil
}

func (rn *run) think(ctx context.Context, i int, t action.Think) {
	rn.record(StepRecord{Iteration: i, Kind: RecordThought, Thought: t.Reasoning})

	event := rn.logger.Debug()
	if rn.opts.ShowThinking {
		event = rn.logger.Info()
	}
	event.Int("step", i).Str("reasoning", t.Reasoning).Msg("Thinking")

	if t.Reasoning == "" {
		return
	}
	rn.remember(ctx, fmt.Sprintf("Reasoning at step %d: %s", i, t.Reasoning), memory.Semantic, map[string]interface{}{"step": i})
	rn.remember(ctx, t.Reasoning, memory.Working, map[string]interface{}{"key": fmt.Sprintf("thought_%d", i)})
}

func (rn *run) invoke(ctx context.Context, i int, t action.Tool) error {
	spec, ok := rn.cfg.Catalog.Get(t.Name)
	if !ok {
		rn.logger.Warn().Str("tool", t.Name).Msg("Unknown tool")
		rn.record(StepRecord{Iteration: i, Kind: RecordError, Error: fmt.Sprintf("Tool '%s' not found", t.Name)})
		return nil
	}

	if rn.policy.RequiresConsent(t.Name) {
		subject := consent.TargetOf(t.Name, t.Args)
		target := consent.DisplayTarget(subject)
		decision := rn.engine.Request(ctx, consent.Request{
			Operation: t.Name,
			Target:    target,
			Subject:   subject,
			Details:   map[string]interface{}{"args": t.Args},
		})
		if !consent.Approved(decision) {
			rn.denied(ctx, i, t.Name, target)
			return nil
		}
	}

	rn.logger.Info().Int("step", i).Str("tool", t.Name).Msg("Executing tool")
	res, err := rn.cfg.Executor.Execute(ctx, spec, t.Args)
	if err != nil {
		return err
	}

	if res.Blocked {
		observability.AuditSecurity(ctx, "tool_blocked", "blocked", map[string]interface{}{
			"tool":  t.Name,
			"error": res.Error,
		})
	}

	observation, _ := rn.cfg.Validator.Sanitize(res.Observation()).(map[string]interface{})
	rn.record(StepRecord{Iteration: i, Kind: RecordObservation, Operation: t.Name, Observation: observation})

	note := fmt.Sprintf("Tool %s result: %s", t.Name, firstRunes(renderObservation(observation), resultNoteLength))
	rn.remember(ctx, note, memory.Semantic, map[string]interface{}{"step": i, "tool": t.Name})
	return nil
}

func (rn *run) denied(ctx context.Context, i int, operation, target string) {
	rn.record(StepRecord{Iteration: i, Kind: RecordConsentDenied, ConsentDenied: true, Operation: operation})
	rn.remember(ctx, fmt.Sprintf("User denied operation: %s on %s", operation, target), memory.Episodic, map[string]interface{}{
		"step":      i,
		"operation": operation,
	})

	denials := rn.state.countDenials(operation, rn.cfg.DenialWindow)
	rn.logger.Warn().Int("step", i).Str("operation", operation).Int("denials", denials).Msg("Consent denied")
	if denials < rn.cfg.DenialThreshold {
		return
	}

	msg := fmt.Sprintf("I cannot complete this task because the user has denied permission for '%s' operations. "+
		"Please manually perform this operation or grant permission if you'd like me to proceed.", operation)
	observability.AuditSecurity(ctx, "run_blocked", "blocked", map[string]interface{}{
		"operation": operation,
		"denials":   denials,
	})
	rn.record(StepRecord{Iteration: i, Kind: RecordFinalResult, Action: action.Finish{Output: msg}, FinalResult: msg})
	rn.remember(ctx, "Final result: "+msg, memory.Episodic, map[string]interface{}{"step": i})
	rn.terminal = &RunResult{Result: msg, Status: StatusBlocked}
}

func (rn *run) finish(ctx context.Context, i int, f action.Finish) {
	output := rn.cfg.Validator.SanitizeString(f.Output)
	rn.record(StepRecord{Iteration: i, Kind: RecordFinalResult, FinalResult: output})
	rn.remember(ctx, "Final result: "+output, memory.Episodic, map[string]interface{}{"step": i})
	rn.terminal = &RunResult{Result: output, Status: StatusFinished}
}

func (rn *run) fail(ctx context.Context, i int, err error) {
	msg := fmt.Sprintf("Error at step %d: %v", i, err)
	rn.logger.Error().Err(err).Int("step", i).Msg("Step failed")
	rn.record(StepRecord{Iteration: i, Kind: RecordError, Error: msg})
	// Memory writes must not re-enter the failure path.
	func() {
		defer func() { _ = recover() }()
		rn.remember(context.WithoutCancel(ctx), msg, memory.Episodic, map[string]interface{}{"step": i})
	}()
}

func (rn *run) record(rec StepRecord) {
	rec = rn.state.record(rec)
	observability.RecordAgentStep(string(rec.Kind))
	if rn.opts.OnRecord != nil {
		rn.opts.OnRecord(rec)
	}
}

func (rn *run) remember(ctx context.Context, content string, kind memory.Kind, metadata map[string]interface{}) {
	if _, err := rn.state.Remember(ctx, content, kind, metadata); err != nil {
		rn.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to write memory")
	}
}

func renderObservation(obs map[string]interface{}) string {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Sprint(obs)
	}
	return string(data)
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
