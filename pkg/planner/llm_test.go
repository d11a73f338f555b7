package planner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/stepwise/pkg/action"
	"github.com/harun/stepwise/pkg/agent"
	"github.com/harun/stepwise/pkg/toolexecutor"
)

type fakeProvider struct {
	mu       sync.Mutex
	resp     *Response
	err      error
	requests []Request
}

func (f *fakeProvider) Call(ctx context.Context, request Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeProvider) Provider() string { return "fake" }

func (f *fakeProvider) last(t *testing.T) Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func testTools() []toolexecutor.ToolSpec {
	return []toolexecutor.ToolSpec{
		{
			Name:        "math.calc",
			Description: "Evaluate an arithmetic expression",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "expression", Type: "string", Description: "Expression", Required: true},
			},
		},
		{Name: "system.info", Description: "Describe the host"},
	}
}

func newTestPlanner(t *testing.T, provider string, fake *fakeProvider) *LLMPlanner {
	t.Helper()
	p, err := NewLLMPlanner(LLMConfig{
		Provider: provider,
		Client:   fake,
		APIKey:   "test-key",
		Model:    DefaultChatModel,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return p
}

func toolCallResponse(name, args string) *Response {
	return &Response{ToolCalls: []ToolCall{{ID: "call_1", Name: name, Arguments: args}}}
}

func TestLLMPlanner_MissingAPIKey(t *testing.T) {
	p, err := NewLLMPlanner(LLMConfig{Provider: "deepseek", Model: DefaultChatModel, Logger: zerolog.Nop()})
	require.NoError(t, err)

	act, err := p.PlanNext(context.Background(), agent.NewAgentState("Calculate 3 * 4", nil), testTools())
	require.NoError(t, err)
	assert.Equal(t, action.Finish{Output: "No API key configured for deepseek. Please set the appropriate environment variable."}, act)
}

func TestLLMPlanner_UnsupportedProvider(t *testing.T) {
	_, err := NewLLMPlanner(LLMConfig{Provider: "gemini", APIKey: "k", Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestLLMPlanner_ToolCallMapsBackToToolName(t *testing.T) {
	fake := &fakeProvider{resp: toolCallResponse("math_calc", `{"expression":"3 * 4"}`)}
	p := newTestPlanner(t, "openai", fake)

	act, err := p.PlanNext(context.Background(), agent.NewAgentState("Calculate 3 * 4", nil), testTools())
	require.NoError(t, err)
	assert.Equal(t, action.Tool{Name: "math.calc", Args: map[string]interface{}{"expression": "3 * 4"}}, act)

	req := fake.last(t)
	assert.Equal(t, DefaultChatModel, req.Model)
	assert.Contains(t, req.SystemPrompt, "GOAL: Calculate 3 * 4")
	assert.Contains(t, req.SystemPrompt, "Available tools: math.calc, system.info")
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "Goal: Calculate 3 * 4\n\n", req.Messages[0].Content)

	var names []string
	for _, fn := range req.Functions {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{"math_calc", "system_info", "think", "finish"}, names)
	assert.Equal(t, []string{"expression"}, req.Functions[0].Parameters["required"])
}

func TestLLMPlanner_UnknownFunctionKeepsName(t *testing.T) {
	fake := &fakeProvider{resp: toolCallResponse("made_up", `{}`)}
	p := newTestPlanner(t, "openai", fake)

	act, err := p.PlanNext(context.Background(), agent.NewAgentState("x", nil), testTools())
	require.NoError(t, err)
	assert.Equal(t, action.Tool{Name: "made_up", Args: map[string]interface{}{}}, act)
}

func TestLLMPlanner_MalformedArguments(t *testing.T) {
	fake := &fakeProvider{resp: toolCallResponse("system_info", `{not json`)}
	p := newTestPlanner(t, "openai", fake)

	act, err := p.PlanNext(context.Background(), agent.NewAgentState("x", nil), testTools())
	require.NoError(t, err)
	assert.Equal(t, action.Tool{Name: "system.info", Args: map[string]interface{}{}}, act)
}

func TestLLMPlanner_ThinkFallbacks(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{"reasoning", &Response{ToolCalls: []ToolCall{{Name: "think", Arguments: `{"reasoning":"break it down"}`}}}, "break it down"},
		{"content", &Response{Content: "from content", ToolCalls: []ToolCall{{Name: "think", Arguments: `{"reasoning":""}`}}}, "from content"},
		{"default", &Response{ToolCalls: []ToolCall{{Name: "think", Arguments: `{}`}}}, "Processing the request..."},
		{"no tool call", &Response{Content: "plain text"}, "plain text"},
		{"empty response", &Response{}, "Analyzing the problem..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlanner(t, "openai", &fakeProvider{resp: tt.resp})
			act, err := p.PlanNext(context.Background(), agent.NewAgentState("x", nil), nil)
			require.NoError(t, err)
			assert.Equal(t, action.Think{Reasoning: tt.want}, act)
		})
	}
}

func TestLLMPlanner_Finish(t *testing.T) {
	p := newTestPlanner(t, "openai", &fakeProvider{resp: toolCallResponse("finish", `{"output":"Paris"}`)})
	act, err := p.PlanNext(context.Background(), agent.NewAgentState("What is the capital of France?", nil), nil)
	require.NoError(t, err)
	assert.Equal(t, action.Finish{Output: "Paris"}, act)

	p = newTestPlanner(t, "openai", &fakeProvider{resp: &Response{
		Content:   "Shakespeare",
		ToolCalls: []ToolCall{{Name: "finish", Arguments: `{}`}},
	}})
	act, err = p.PlanNext(context.Background(), agent.NewAgentState("Who wrote Romeo and Juliet?", nil), nil)
	require.NoError(t, err)
	assert.Equal(t, action.Finish{Output: "Shakespeare"}, act)
}

func TestLLMPlanner_ProviderErrorFinishes(t *testing.T) {
	p := newTestPlanner(t, "openai", &fakeProvider{err: errors.New("connection refused")})
	act, err := p.PlanNext(context.Background(), agent.NewAgentState("x", nil), nil)
	require.NoError(t, err)
	assert.Equal(t, action.Finish{Output: "Error in planning: connection refused"}, act)
}

func TestLLMPlanner_ComplexityRouting(t *testing.T) {
	fake := &fakeProvider{resp: toolCallResponse("finish", `{"output":"done"}`)}
	p, err := NewLLMPlanner(LLMConfig{
		Provider:                "deepseek",
		Client:                  fake,
		APIKey:                  "k",
		Model:                   DefaultChatModel,
		EnableComplexityRouting: true,
		Logger:                  zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = p.PlanNext(context.Background(), agent.NewAgentState("Calculate 15 * 8", nil), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultChatModel, fake.last(t).Model)

	complexGoal := "Analyze the pros and cons of microservices architecture and recommend an optimal strategy for a high-traffic e-commerce platform"
	_, err = p.PlanNext(context.Background(), agent.NewAgentState(complexGoal, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultReasonerModel, fake.last(t).Model)
}

func TestLLMPlanner_RateLimitHonorsContext(t *testing.T) {
	p, err := NewLLMPlanner(LLMConfig{
		Provider:          "openai",
		Client:            &fakeProvider{resp: &Response{}},
		APIKey:            "k",
		RequestsPerSecond: 1,
		Logger:            zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.PlanNext(ctx, agent.NewAgentState("x", nil), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderContext(t *testing.T) {
	long := strings.Repeat("x", 300)
	history := []agent.StepRecord{
		{Iteration: 0, Kind: agent.RecordAction, Action: action.Tool{Name: "math.calc", Args: map[string]interface{}{"expression": "3 * 4"}}},
		{Iteration: 0, Kind: agent.RecordObservation, Operation: "math.calc", Observation: map[string]interface{}{"result": 12}},
		{Iteration: 1, Kind: agent.RecordAction, Action: action.Tool{Name: "file.delete", Args: map[string]interface{}{"path": "a.txt"}}},
		{Iteration: 1, Kind: agent.RecordConsentDenied, ConsentDenied: true, Operation: "file.delete"},
		{Iteration: 2, Kind: agent.RecordAction, Action: action.Think{Reasoning: "try something else"}},
		{Iteration: 2, Kind: agent.RecordThought, Thought: "try something else"},
		{Iteration: 3, Kind: agent.RecordObservation, Observation: map[string]interface{}{"content": long}},
		{Iteration: 4, Kind: agent.RecordError, Error: "Tool 'nope' not found"},
	}
	state := agent.NewAgentState("Calculate 3 * 4", nil, history...)

	got := renderContext(state.Goal, state.History())

	assert.True(t, strings.HasPrefix(got, "Goal: Calculate 3 * 4\n\nPrevious steps:\n"))
	assert.Contains(t, got, "- Step 0: tool action using math.calc with args map[expression:3 * 4]\n")
	assert.Contains(t, got, "  Result: map[result:12]\n")
	assert.Contains(t, got, "- Step 3: USER DENIED operation 'file.delete' - DO NOT retry this operation\n")
	assert.Contains(t, got, "- Step 4: think action: try something else\n")
	assert.Contains(t, got, "  Error: Tool 'nope' not found\n")
	assert.NotContains(t, got, long)
	assert.Contains(t, got, "  Result: map[content:"+strings.Repeat("x", 200-len("map[content:"))+"\n")
}

func TestRenderContext_LastTenRecords(t *testing.T) {
	var history []agent.StepRecord
	for i := 0; i < 12; i++ {
		history = append(history, agent.StepRecord{Iteration: i, Kind: agent.RecordAction, Action: action.Think{Reasoning: "r"}})
	}
	got := renderContext("g", agent.NewAgentState("g", nil, history...).History())

	assert.NotContains(t, got, "- Step 1:")
	assert.Contains(t, got, "- Step 2:")
	assert.Contains(t, got, "- Step 11:")
}

func TestSummarizeObservation(t *testing.T) {
	search := map[string]interface{}{
		"summary": "Found results",
		"count":   4,
		"results": []interface{}{
			map[string]interface{}{"title": "A", "snippet": "first snippet"},
			map[string]interface{}{"title": "same", "snippet": "same"},
			map[string]interface{}{"title": "C", "snippet": "third snippet"},
			map[string]interface{}{"title": "D", "snippet": "fourth snippet"},
		},
	}
	got := summarizeObservation(search)
	assert.True(t, strings.HasPrefix(got, "Web search found 4 results with valuable information. Key findings: "))
	assert.Contains(t, got, " [1] first snippet")
	assert.NotContains(t, got, "[2]")
	assert.Contains(t, got, " [3] third snippet")
	assert.NotContains(t, got, "fourth snippet")
	assert.Contains(t, got, "Do not search again.")

	guidance := map[string]interface{}{"guidance": strings.Repeat("g", 300)}
	assert.Len(t, summarizeObservation(guidance), len("map[guidance:]")+300)
}
