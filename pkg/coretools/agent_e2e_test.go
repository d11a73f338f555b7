package coretools_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/stepwise/pkg/action"
	"github.com/harun/stepwise/pkg/agent"
	"github.com/harun/stepwise/pkg/consent"
	"github.com/harun/stepwise/pkg/coretools"
	"github.com/harun/stepwise/pkg/memory"
	"github.com/harun/stepwise/pkg/planner"
	"github.com/harun/stepwise/pkg/toolexecutor"
)

// calcPlanner calls math.calc once and finishes with its observation
func calcPlanner(expression string) agent.Planner {
	return agent.PlannerFunc(func(ctx context.Context, state *agent.AgentState, tools []toolexecutor.ToolSpec) (action.Action, error) {
		for _, rec := range state.History() {
			if rec.Kind == agent.RecordObservation && rec.Operation == "math.calc" {
				return action.Finish{Output: fmt.Sprintf("%s = %v", expression, rec.Observation["result"])}, nil
			}
		}
		return action.Tool{Name: "math.calc", Args: map[string]interface{}{"expression": expression}}, nil
	})
}

func newRunner(t *testing.T, p agent.Planner, prompter consent.Prompter, policy consent.Policy) (*agent.Runner, string) {
	t.Helper()

	mgr, err := memory.NewManager(memory.Config{DBPath: memory.InMemoryDB, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	workDir := t.TempDir()
	catalog := toolexecutor.NewCatalog()
	require.NoError(t, coretools.Register(catalog, coretools.Options{WorkDir: workDir, Memory: mgr}))

	runner, err := agent.NewRunner(agent.Config{
		Planner:       p,
		Catalog:       catalog,
		Executor:      toolexecutor.NewExecutor(toolexecutor.Options{MaxAttempts: 1}),
		Memory:        mgr,
		ConsentPolicy: policy,
		Prompter:      prompter,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	return runner, workDir
}

func TestAgent_CalculateEndToEnd(t *testing.T) {
	runner, _ := newRunner(t, calcPlanner("3 * 4"), nil, consent.DefaultPolicy())

	result := runner.Run(context.Background(), "Calculate 3 * 4", 5, agent.RunOptions{})

	assert.Equal(t, agent.StatusFinished, result.Status)
	assert.Contains(t, result.Result, "12")
	assert.Equal(t, 2, result.Iterations)

	var tools int
	for _, rec := range result.History {
		if rec.Kind == agent.RecordAction && rec.Action.Kind() == action.KindTool {
			tools++
		}
	}
	assert.Equal(t, 1, tools)
	assert.NotEmpty(t, result.MemorySummary.Episodic)
}

func TestAgent_ScriptedFileWrite(t *testing.T) {
	p := planner.NewScriptedPlanner(
		action.Tool{Name: "file.write", Args: map[string]interface{}{"path": "test.txt", "content": "Hello World"}},
		action.Tool{Name: "file.read", Args: map[string]interface{}{"path": "test.txt"}},
		action.Finish{Output: "Created test.txt with the content 'Hello World'"},
	)
	runner, workDir := newRunner(t, p, nil, consent.DefaultPolicy())

	result := runner.Run(context.Background(), "Create a file called 'test.txt' with the content 'Hello World'", 5, agent.RunOptions{})

	require.Equal(t, agent.StatusFinished, result.Status)
	assert.FileExists(t, workDir+"/test.txt")

	var read map[string]interface{}
	for _, rec := range result.History {
		if rec.Kind == agent.RecordObservation && rec.Operation == "file.read" {
			read = rec.Observation
		}
	}
	require.NotNil(t, read)
	assert.Equal(t, "Hello World", read["content"])
}

func TestAgent_DeniedDeleteBlocksRun(t *testing.T) {
	p := planner.NewScriptedPlanner(
		action.Tool{Name: "file.delete", Args: map[string]interface{}{"path": "keep.txt"}},
		action.Tool{Name: "file.delete", Args: map[string]interface{}{"path": "keep.txt"}},
		action.Finish{Output: "unreachable"},
	)
	policy := consent.DefaultPolicy()
	policy.Interactive = true
	prompter := consent.NewStaticPrompter(consent.Deny)

	runner, _ := newRunner(t, p, prompter, policy)
	result := runner.Run(context.Background(), "Delete keep.txt", 5, agent.RunOptions{})

	assert.Equal(t, agent.StatusBlocked, result.Status)
	assert.NotEqual(t, "unreachable", result.Result)
	assert.Equal(t, 2, prompter.Calls())
}
