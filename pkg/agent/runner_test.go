package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harun/stepwise/pkg/action"
	"github.com/harun/stepwise/pkg/consent"
	"github.com/harun/stepwise/pkg/memory"
	"github.com/harun/stepwise/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptStep is one planner response; panicMsg makes the planner panic
type scriptStep struct {
	act      action.Action
	err      error
	panicMsg string
}

type scriptPlanner struct {
	steps  []scriptStep
	calls  int
	states []*AgentState
}

func (p *scriptPlanner) PlanNext(ctx context.Context, state *AgentState, tools []toolexecutor.ToolSpec) (action.Action, error) {
	p.states = append(p.states, state)
	defer func() { p.calls++ }()
	if p.calls >= len(p.steps) {
		return action.Think{Reasoning: "still working"}, nil
	}
	step := p.steps[p.calls]
	if step.panicMsg != "" {
		panic(step.panicMsg)
	}
	return step.act, step.err
}

func script(actions ...action.Action) *scriptPlanner {
	p := &scriptPlanner{}
	for _, a := range actions {
		p.steps = append(p.steps, scriptStep{act: a})
	}
	return p
}

type testEnv struct {
	catalog     *toolexecutor.Catalog
	memory      *memory.Manager
	deleteCalls atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mgr, err := memory.NewManager(memory.Config{
		DBPath: filepath.Join(t.TempDir(), "memory.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	env := &testEnv{catalog: toolexecutor.NewCatalog(), memory: mgr}

	require.NoError(t, env.catalog.Register(toolexecutor.ToolSpec{
		Name:        "math.calc",
		Description: "Multiply two numbers written as 'a * b'",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "expression", Type: "string", Description: "Expression", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			if args["expression"] == "3 * 4" {
				return map[string]interface{}{"result": 12, "expression": "3 * 4"}, nil
			}
			return nil, errors.New("unsupported expression")
		},
	}))
	require.NoError(t, env.catalog.Register(toolexecutor.ToolSpec{
		Name:        "file.delete",
		Description: "Delete a file",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "path", Type: "string", Description: "Path", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			env.deleteCalls.Add(1)
			return map[string]interface{}{"deleted": args["path"]}, nil
		},
	}))
	require.NoError(t, env.catalog.Register(toolexecutor.ToolSpec{
		Name:        "text.leak",
		Description: "Returns a secret",
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"note": "password=hunter2"}, nil
		},
	}))

	return env
}

func (env *testEnv) runner(t *testing.T, planner Planner, mutate ...func(*Config)) *Runner {
	t.Helper()
	cfg := Config{
		Planner:       planner,
		Catalog:       env.catalog,
		Memory:        env.memory,
		Executor:      toolexecutor.NewExecutor(toolexecutor.Options{MaxAttempts: 1, BaseBackoff: time.Millisecond}),
		ConsentPolicy: consent.DefaultPolicy(),
		Logger:        zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	return r
}

func kinds(history []StepRecord) []RecordKind {
	out := make([]RecordKind, len(history))
	for i, rec := range history {
		out[i] = rec.Kind
	}
	return out
}

func assertContiguous(t *testing.T, history []StepRecord) {
	t.Helper()
	for i, rec := range history {
		assert.Equal(t, i, rec.Step, "record %d", i)
	}
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewRunner(Config{Catalog: env.catalog, Memory: env.memory})
	assert.Error(t, err)
	_, err = NewRunner(Config{Planner: script(), Memory: env.memory})
	assert.Error(t, err)
	_, err = NewRunner(Config{Planner: script(), Catalog: env.catalog})
	assert.Error(t, err)
}

func TestRunner_Run_ToolThenFinish(t *testing.T) {
	env := newTestEnv(t)
	planner := script(
		action.Tool{Name: "math.calc", Args: map[string]interface{}{"expression": "3 * 4"}},
		action.Finish{Output: "3 * 4 = 12"},
	)

	result := env.runner(t, planner).Run(context.Background(), "Calculate 3 * 4", 5, RunOptions{})

	assert.Equal(t, StatusFinished, result.Status)
	assert.Equal(t, "3 * 4 = 12", result.Result)
	assert.NotEmpty(t, result.TraceID)
	assert.Equal(t, 2, result.Iterations)

	require.Equal(t, []RecordKind{RecordAction, RecordObservation, RecordAction, RecordFinalResult}, kinds(result.History))
	assertContiguous(t, result.History)
	assert.Equal(t, []int{0, 0, 1, 1}, []int{
		result.History[0].Iteration, result.History[1].Iteration,
		result.History[2].Iteration, result.History[3].Iteration,
	})
	assert.Equal(t, float64(12), toFloat(result.History[1].Observation["result"]))
	assert.Equal(t, "math.calc", result.History[1].Operation)

	require.NotEmpty(t, result.MemorySummary.Episodic)
	assert.Equal(t, "Agent goal: Calculate 3 * 4", result.MemorySummary.Episodic[0].Content)

	notes, err := env.memory.Recall(context.Background(), "Tool math.calc result", memory.Semantic, 5)
	require.NoError(t, err)
	require.NotEmpty(t, notes)
	assert.Contains(t, notes[0].Content, "12")

	finals, err := env.memory.Recall(context.Background(), "Final result", memory.Episodic, 5)
	require.NoError(t, err)
	require.NotEmpty(t, finals)
	assert.Equal(t, "Final result: 3 * 4 = 12", finals[0].Content)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return -1
	}
}

func TestRunner_Run_RejectsInvalidGoal(t *testing.T) {
	env := newTestEnv(t)
	planner := script()

	seen := map[string]bool{}
	for _, goal := range []string{"", "   ", "<script>alert(1)</script>"} {
		result := env.runner(t, planner).Run(context.Background(), goal, 5, RunOptions{})
		assert.Equal(t, StatusRejected, result.Status)
		require.NotEmpty(t, result.TraceID)
		assert.False(t, seen[result.TraceID])
		seen[result.TraceID] = true
		assert.NotEmpty(t, result.Result)
		assert.Empty(t, result.History)
	}
	assert.Equal(t, 0, planner.calls)
}

func TestRunner_Run_MaxSteps(t *testing.T) {
	env := newTestEnv(t)
	planner := script()

	result := env.runner(t, planner).Run(context.Background(), "Think forever", 3, RunOptions{})

	assert.Equal(t, StatusMaxSteps, result.Status)
	assert.Equal(t, "Task partially completed after 3 steps", result.Result)
	assert.Equal(t, 3, planner.calls)
	assert.Equal(t, 3, result.Iterations)
	require.Len(t, result.History, 6)
	assertContiguous(t, result.History)

	for _, key := range []string{"thought_0", "thought_1", "thought_2"} {
		assert.Equal(t, "still working", result.MemorySummary.Working[key])
	}
}

func TestRunner_Run_HistoryGrowsMonotonically(t *testing.T) {
	env := newTestEnv(t)
	planner := script(
		action.Think{Reasoning: "plan"},
		action.Tool{Name: "missing.tool"},
		action.Tool{Name: "math.calc", Args: map[string]interface{}{"expression": "3 * 4"}},
	)

	var seen []int
	opts := RunOptions{OnRecord: func(rec StepRecord) { seen = append(seen, rec.Step) }}
	result := env.runner(t, planner).Run(context.Background(), "Do things", 4, opts)

	assert.Equal(t, StatusMaxSteps, result.Status)
	assert.Equal(t, 4, planner.calls)

	for i, step := range seen {
		assert.Equal(t, i, step)
	}
	assert.Len(t, seen, len(result.History))

	// Planner sees history grow between calls.
	require.Len(t, planner.states, 4)
	assert.Same(t, planner.states[0], planner.states[3])
	assert.Equal(t, result.History[len(result.History)-1].Step, len(result.History)-1)
}

func TestRunner_Run_UnknownTool(t *testing.T) {
	env := newTestEnv(t)
	planner := script(
		action.Tool{Name: "nope.tool", Args: map[string]interface{}{}},
		action.Finish{Output: "done"},
	)

	result := env.runner(t, planner).Run(context.Background(), "Use a tool", 5, RunOptions{})

	assert.Equal(t, StatusFinished, result.Status)
	require.Equal(t, []RecordKind{RecordAction, RecordError, RecordAction, RecordFinalResult}, kinds(result.History))
	assert.Equal(t, "Tool 'nope.tool' not found", result.History[1].Error)
}

func TestRunner_Run_ValidationFailureContinues(t *testing.T) {
	env := newTestEnv(t)
	planner := script(
		action.Tool{Name: ""},
		nil,
		action.Finish{Output: "done"},
	)

	result := env.runner(t, planner).Run(context.Background(), "Validate", 5, RunOptions{})

	assert.Equal(t, StatusFinished, result.Status)
	require.Equal(t, []RecordKind{RecordError, RecordError, RecordAction, RecordFinalResult}, kinds(result.History))
	assert.True(t, strings.HasPrefix(result.History[0].Error, "Action validation failed: "))
	assert.Equal(t, 0, result.History[0].Iteration)
	assert.Equal(t, 1, result.History[1].Iteration)
	assertContiguous(t, result.History)
}

func TestRunner_Run_PlannerErrorsAndPanicsAreRecorded(t *testing.T) {
	env := newTestEnv(t)
	planner := &scriptPlanner{steps: []scriptStep{
		{err: errors.New("boom")},
		{panicMsg: "planner exploded"},
		{act: action.Finish{Output: "recovered"}},
	}}

	result := env.runner(t, planner).Run(context.Background(), "Survive failures", 5, RunOptions{})

	assert.Equal(t, StatusFinished, result.Status)
	assert.Equal(t, "recovered", result.Result)
	require.Equal(t, []RecordKind{RecordError, RecordError, RecordAction, RecordFinalResult}, kinds(result.History))
	assert.Equal(t, "Error at step 0: planning failed: boom", result.History[0].Error)
	assert.Equal(t, "Error at step 1: panic: planner exploded", result.History[1].Error)
}

func TestRunner_Run_ToolFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	planner := script(
		action.Tool{Name: "math.calc", Args: map[string]interface{}{"expression": "1 / 0"}},
		action.Finish{Output: "gave up"},
	)

	result := env.runner(t, planner).Run(context.Background(), "Divide", 5, RunOptions{})

	assert.Equal(t, StatusFinished, result.Status)
	require.Equal(t, RecordError, result.History[1].Kind)
	assert.Contains(t, result.History[1].Error, "Error at step 0: tool math.calc failed after 1 attempt(s)")
}

func TestRunner_Run_BlockedToolResultIsObservation(t *testing.T) {
	env := newTestEnv(t)
	planner := script(
		action.Tool{Name: "math.calc", Args: map[string]interface{}{"wrong": "arg"}},
		action.Finish{Output: "ok"},
	)

	result := env.runner(t, planner).Run(context.Background(), "Calculate", 5, RunOptions{})

	require.Equal(t, RecordObservation, result.History[1].Kind)
	assert.Equal(t, true, result.History[1].Observation["blocked"])
	assert.NotEmpty(t, result.History[1].Observation["error"])
}

func TestRunner_Run_SanitizesObservationsAndResult(t *testing.T) {
	env := newTestEnv(t)
	planner := script(
		action.Tool{Name: "text.leak", Args: map[string]interface{}{}},
		action.Finish{Output: "the secret: hunter2"},
	)

	result := env.runner(t, planner).Run(context.Background(), "Leak something", 5, RunOptions{})

	assert.NotContains(t, result.History[1].Observation["note"], "hunter2")
	assert.NotContains(t, result.Result, "hunter2")
}

func TestRunner_Run_TwoDenialsBlockTheRun(t *testing.T) {
	env := newTestEnv(t)
	deleteAction := action.Tool{Name: "file.delete", Args: map[string]interface{}{"path": "notes.txt"}}
	planner := script(deleteAction, deleteAction, deleteAction)
	interactive := true

	result := env.runner(t, planner).Run(context.Background(), "Delete notes.txt", 10, RunOptions{Interactive: &interactive})

	assert.Equal(t, StatusBlocked, result.Status)
	assert.Contains(t, result.Result, "denied permission for 'file.delete' operations")
	assert.Equal(t, 2, planner.calls)
	assert.Equal(t, int32(0), env.deleteCalls.Load())

	require.Equal(t, []RecordKind{
		RecordAction, RecordConsentDenied, RecordAction, RecordConsentDenied, RecordFinalResult,
	}, kinds(result.History))
	assert.Equal(t, "file.delete", result.History[1].Operation)
	assert.True(t, result.History[1].ConsentDenied)
	_, isFinish := result.History[4].Action.(action.Finish)
	assert.True(t, isFinish)

	notes, err := env.memory.Recall(context.Background(), "User denied operation", memory.Episodic, 10)
	require.NoError(t, err)
	var denials []string
	for _, note := range notes {
		if strings.HasPrefix(note.Content, "User denied operation: ") {
			denials = append(denials, note.Content)
		}
	}
	assert.Equal(t, []string{
		"User denied operation: file.delete on notes.txt",
		"User denied operation: file.delete on notes.txt",
	}, denials)
}

func TestRunner_Run_DenialsOutsideWindowDoNotBlock(t *testing.T) {
	env := newTestEnv(t)
	deleteAction := action.Tool{Name: "file.delete", Args: map[string]interface{}{"path": "notes.txt"}}
	planner := script(deleteAction, action.Think{Reasoning: "try later"}, deleteAction, action.Finish{Output: "stopped"})
	interactive := true

	r := env.runner(t, planner, func(cfg *Config) { cfg.DenialWindow = 3 })
	result := r.Run(context.Background(), "Delete notes.txt", 10, RunOptions{Interactive: &interactive})

	assert.Equal(t, StatusFinished, result.Status)
	assert.Equal(t, "stopped", result.Result)
}

func TestRunner_Run_ConsentApproved(t *testing.T) {
	env := newTestEnv(t)
	planner := script(
		action.Tool{Name: "file.delete", Args: map[string]interface{}{"path": "notes.txt"}},
		action.Finish{Output: "deleted"},
	)
	prompter := consent.NewStaticPrompter(consent.Allow)
	interactive := true

	r := env.runner(t, planner, func(cfg *Config) { cfg.Prompter = prompter })
	result := r.Run(context.Background(), "Delete notes.txt", 5, RunOptions{Interactive: &interactive})

	assert.Equal(t, StatusFinished, result.Status)
	assert.Equal(t, int32(1), env.deleteCalls.Load())
	assert.Equal(t, 1, prompter.Calls())
}

func TestRunner_Run_NonInteractiveSkipsConsent(t *testing.T) {
	env := newTestEnv(t)
	planner := script(
		action.Tool{Name: "file.delete", Args: map[string]interface{}{"path": "notes.txt"}},
		action.Finish{Output: "deleted"},
	)

	result := env.runner(t, planner).Run(context.Background(), "Delete notes.txt", 5, RunOptions{})

	assert.Equal(t, StatusFinished, result.Status)
	assert.Equal(t, int32(1), env.deleteCalls.Load())
}

func TestRunner_Run_ConsentStateIsPerRun(t *testing.T) {
	env := newTestEnv(t)
	deleteAction := action.Tool{Name: "file.delete", Args: map[string]interface{}{"path": "notes.txt"}}
	prompter := consent.NewStaticPrompter(consent.DenyAllSession, consent.Allow)
	interactive := true

	first := script(deleteAction, action.Finish{Output: "first done"})
	r := env.runner(t, first, func(cfg *Config) { cfg.Prompter = prompter })
	result := r.Run(context.Background(), "Delete notes.txt", 5, RunOptions{Interactive: &interactive})
	assert.Equal(t, StatusFinished, result.Status)
	assert.Equal(t, int32(0), env.deleteCalls.Load())

	second := script(deleteAction, action.Finish{Output: "second done"})
	r = env.runner(t, second, func(cfg *Config) { cfg.Prompter = prompter })
	result = r.Run(context.Background(), "Delete notes.txt", 5, RunOptions{Interactive: &interactive})
	assert.Equal(t, StatusFinished, result.Status)
	assert.Equal(t, int32(1), env.deleteCalls.Load(), "deny-all from the first run does not leak")
}

func TestRunner_Run_CancelledContextStillTerminates(t *testing.T) {
	env := newTestEnv(t)
	planner := script(action.Finish{Output: "never"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := env.runner(t, planner).Run(ctx, "Cancelled goal", 3, RunOptions{})

	assert.Equal(t, StatusMaxSteps, result.Status)
	assert.Equal(t, 0, planner.calls)
	require.Len(t, result.History, 3)
	for _, rec := range result.History {
		assert.Equal(t, RecordError, rec.Kind)
		assert.Contains(t, rec.Error, "context canceled")
	}
}

func TestRunner_Run_DefaultMaxSteps(t *testing.T) {
	env := newTestEnv(t)
	planner := script()

	r := env.runner(t, planner, func(cfg *Config) { cfg.MaxSteps = 2 })
	result := r.Run(context.Background(), "Loop", 0, RunOptions{})

	assert.Equal(t, StatusMaxSteps, result.Status)
	assert.Equal(t, 2, planner.calls)
}

func TestAgentState_Recent(t *testing.T) {
	state := NewAgentState("goal", nil,
		StepRecord{Kind: RecordThought},
		StepRecord{Kind: RecordConsentDenied, Operation: "shell.exec"},
		StepRecord{Kind: RecordConsentDenied, Operation: "file.delete"},
	)

	assert.Equal(t, 3, state.Len())
	assert.Len(t, state.Recent(2), 2)
	assert.Equal(t, 1, state.Recent(2)[0].Step)
	assert.Len(t, state.Recent(10), 3)
	assert.Equal(t, 1, state.countDenials("shell.exec", 5))
	assert.Equal(t, 0, state.countDenials("shell.exec", 1))

	snapshot, err := state.Context(context.Background(), "goal", 3)
	require.NoError(t, err)
	assert.True(t, snapshot.Empty())
}
