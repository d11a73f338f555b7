package planner

import (
	"context"

	"github.com/harun/stepwise/pkg/action"
	"github.com/harun/stepwise/pkg/agent"
	"github.com/harun/stepwise/pkg/toolexecutor"
)

// OfflineNotice is the answer given when no model provider is configured
const OfflineNotice = "Offline mode: no LLM provider is configured, so no plan was made. " +
	"Set llm.provider and the matching API key to plan with a model."

// ScriptedPlanner replays a fixed action sequence. The position is derived
// from the number of iterations already in the run's history, so one
// planner can serve many runs.
type ScriptedPlanner struct {
	actions []action.Action
	// Done is returned once the script is exhausted
	Done action.Action
}

var _ agent.Planner = (*ScriptedPlanner)(nil)

// NewScriptedPlanner creates a planner that returns actions in order and
// then finishes.
func NewScriptedPlanner(actions ...action.Action) *ScriptedPlanner {
	return &ScriptedPlanner{
		actions: actions,
		Done:    action.Finish{Output: "Script complete"},
	}
}

// NewOfflinePlanner finishes every run immediately with OfflineNotice
func NewOfflinePlanner() *ScriptedPlanner {
	return &ScriptedPlanner{Done: action.Finish{Output: OfflineNotice}}
}

// PlanNext returns the action for the current iteration
func (p *ScriptedPlanner) PlanNext(ctx context.Context, state *agent.AgentState, tools []toolexecutor.ToolSpec) (action.Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := iterationsSoFar(state.History())
	if i < len(p.actions) {
		return p.actions[i], nil
	}
	return p.Done, nil
}

func iterationsSoFar(history []agent.StepRecord) int {
	seen := make(map[int]struct{})
	for _, rec := range history {
		seen[rec.Iteration] = struct{}{}
	}
	return len(seen)
}
