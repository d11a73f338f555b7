package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/harun/stepwise/internal/observability"
	"github.com/harun/stepwise/internal/tracing"
	"github.com/harun/stepwise/pkg/action"
	"github.com/harun/stepwise/pkg/agent"
	"github.com/harun/stepwise/pkg/toolexecutor"
)

const (
	contextWindow     = 10
	observationLimit  = 200
	snippetLimit      = 200
	searchSampleCount = 3

	thinkFunction  = "think"
	finishFunction = "finish"

	fallbackThinking  = "Processing the request..."
	fallbackAnalyzing = "Analyzing the problem..."
)

// LLMConfig configures an LLMPlanner
type LLMConfig struct {
	// Provider is the configured provider name, used in messages and routing
	Provider string
	// Client overrides the provider client built from the settings below
	Client Provider

	APIKey                  string
	BaseURL                 string
	Model                   string
	ReasonerModel           string
	EnableComplexityRouting bool
	Temperature             float64
	MaxTokens               int
	Timeout                 time.Duration

	// RequestsPerSecond bounds planning calls. Zero means unlimited.
	RequestsPerSecond float64

	Logger zerolog.Logger
}

// LLMPlanner asks a chat model for the next action through function calling
type LLMPlanner struct {
	cfg      LLMConfig
	client   Provider
	selector *Selector
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

var _ agent.Planner = (*LLMPlanner)(nil)

// NewLLMPlanner creates a planner. A missing API key is not an error here;
// every PlanNext call then finishes with a configuration notice.
func NewLLMPlanner(cfg LLMConfig) (*LLMPlanner, error) {
	p := &LLMPlanner{
		cfg:      cfg,
		client:   cfg.Client,
		selector: NewSelector(cfg.Provider, cfg.Model, cfg.ReasonerModel, cfg.EnableComplexityRouting),
		logger:   cfg.Logger.With().Str("component", "planner").Str("provider", cfg.Provider).Logger(),
	}

	if p.client == nil && cfg.APIKey != "" {
		client, err := NewProvider(cfg.Provider, ProviderSettings{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		p.client = client
	}

	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p, nil
}

// Selector exposes the model router
func (p *LLMPlanner) Selector() *Selector {
	return p.selector
}

// PlanNext chooses the next action. Provider failures come back as Finish
// actions rather than errors.
func (p *LLMPlanner) PlanNext(ctx context.Context, state *agent.AgentState, tools []toolexecutor.ToolSpec) (action.Action, error) {
	history := state.History()
	selection := p.selector.Select(state.Goal, RoutingContext(history))
	logger := tracing.LoggerFromContext(ctx, p.logger)

	if selection.RoutingEnabled {
		logger.Info().
			Str("model", selection.Model).
			Bool("complex", selection.IsComplex).
			Str("goal", truncate(state.Goal, 50)).
			Msg("Selected model")
		logger.Debug().Str("reasoning", selection.Analysis.Reasoning).Msg("Complexity analysis")
	} else {
		logger.Debug().Str("model", selection.Model).Msg("Using configured model")
	}

	if p.cfg.APIKey == "" || p.client == nil {
		return action.Finish{Output: fmt.Sprintf(
			"No API key configured for %s. Please set the appropriate environment variable.", p.cfg.Provider)}, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	functions, names := buildFunctions(tools)
	request := Request{
		Model:        selection.Model,
		SystemPrompt: systemPrompt(state.Goal, tools),
		Messages:     []Message{{Role: "user", Content: renderContext(state.Goal, history)}},
		Functions:    functions,
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
	}

	ctx, span := tracing.StartSpan(ctx, "stepwise.planner", "planner.call",
		attribute.String("model", selection.Model),
		attribute.Int("functions", len(functions)),
	)
	defer span.End()

	start := time.Now()
	resp, err := p.client.Call(ctx, request)
	observability.RecordPlannerCall(selection.Model, err == nil)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Str("model", selection.Model).Msg("LLM API error")
		return action.Finish{Output: "Error in planning: " + err.Error()}, nil
	}

	logger.Debug().
		Int("tool_calls", len(resp.ToolCalls)).
		Dur("latency", time.Since(start)).
		Msg("LLM response received")

	return p.decode(logger, resp, names), nil
}

// decode maps the first tool call, if any, onto an action
func (p *LLMPlanner) decode(logger zerolog.Logger, resp *Response, names map[string]string) action.Action {
	if len(resp.ToolCalls) == 0 {
		content := resp.Content
		if content == "" {
			content = fallbackAnalyzing
		}
		return action.Think{Reasoning: content}
	}

	call := resp.ToolCalls[0]
	args := map[string]interface{}{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			logger.Warn().Err(err).Str("function", call.Name).Msg("Malformed function arguments")
			args = map[string]interface{}{}
		}
	}

	switch call.Name {
	case thinkFunction:
		reasoning, _ := args["reasoning"].(string)
		if reasoning == "" {
			reasoning = resp.Content
		}
		if reasoning == "" {
			reasoning = fallbackThinking
		}
		return action.Think{Reasoning: reasoning}
	case finishFunction:
		output, _ := args["output"].(string)
		if output == "" {
			output = resp.Content
		}
		return action.Finish{Output: output}
	}

	name, ok := names[call.Name]
	if !ok {
		name = call.Name
	}
	return action.Tool{Name: name, Args: args}
}

// FunctionName converts a tool name to a function name accepted by chat APIs
func FunctionName(tool string) string {
	return strings.ReplaceAll(tool, ".", "_")
}

// buildFunctions returns the function list and a function-to-tool name lookup
func buildFunctions(tools []toolexecutor.ToolSpec) ([]Function, map[string]string) {
	functions := make([]Function, 0, len(tools)+2)
	names := make(map[string]string, len(tools))
	for _, tool := range tools {
		fn := FunctionName(tool.Name)
		names[fn] = tool.Name
		description := tool.Description
		if description == "" {
			description = "Tool: " + tool.Name
		}
		functions = append(functions, Function{
			Name:        fn,
			Description: description,
			Parameters:  tool.Schema(),
		})
	}

	functions = append(functions,
		Function{
			Name:        thinkFunction,
			Description: "Take a moment to think and reason about the current situation",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"reasoning": map[string]interface{}{"type": "string", "description": "Your reasoning and thoughts"},
				},
				"required": []string{"reasoning"},
			},
		},
		Function{
			Name:        finishFunction,
			Description: "Complete the task and provide the final answer",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"output": map[string]interface{}{"type": "string", "description": "The final answer or result"},
				},
				"required": []string{"output"},
			},
		},
	)
	return functions, names
}

// renderContext builds the user message from the goal and recent history
func renderContext(goal string, history []agent.StepRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", goal)
	if len(history) == 0 {
		return b.String()
	}
	if len(history) > contextWindow {
		history = history[len(history)-contextWindow:]
	}

	b.WriteString("Previous steps:\n")
	for _, rec := range history {
		switch rec.Kind {
		case agent.RecordAction:
			fmt.Fprintf(&b, "- Step %d: %s\n", rec.Step, action.Describe(rec.Action))
		case agent.RecordConsentDenied:
			op := rec.Operation
			if op == "" {
				op = "unknown operation"
			}
			fmt.Fprintf(&b, "- Step %d: USER DENIED operation '%s' - DO NOT retry this operation\n", rec.Step, op)
		case agent.RecordObservation:
			fmt.Fprintf(&b, "  Result: %s\n", summarizeObservation(rec.Observation))
		case agent.RecordError:
			fmt.Fprintf(&b, "  Error: %s\n", truncate(rec.Error, observationLimit))
		}
	}
	return b.String()
}

// summarizeObservation renders an observation for the prompt. Guidance
// results are kept whole, search results are condensed to a few snippets
// and anything else is truncated.
func summarizeObservation(obs map[string]interface{}) string {
	for _, key := range []string{"guidance", "message", "alternatives"} {
		if _, ok := obs[key]; ok {
			return fmt.Sprintf("%v", obs)
		}
	}

	if results, ok := obs["results"]; ok {
		if _, hasSummary := obs["summary"]; hasSummary {
			return summarizeSearch(obs["count"], results)
		}
	}

	return truncate(fmt.Sprintf("%v", obs), observationLimit)
}

func summarizeSearch(count interface{}, results interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Web search found %v results with valuable information. ", orZero(count))

	samples := toMaps(results)
	if len(samples) > searchSampleCount {
		samples = samples[:searchSampleCount]
	}
	if len(samples) > 0 {
		b.WriteString("Key findings: ")
		for i, r := range samples {
			snippet, _ := r["snippet"].(string)
			title, _ := r["title"].(string)
			snippet = truncate(snippet, snippetLimit)
			if snippet != "" && snippet != title {
				fmt.Fprintf(&b, " [%d] %s", i+1, snippet)
			}
		}
	}
	b.WriteString(" [IMPORTANT: Use this search information to provide a comprehensive answer with the 'finish' function. Do not search again.]")
	return b.String()
}

func toMaps(v interface{}) []map[string]interface{} {
	switch items := v.(type) {
	case []map[string]interface{}:
		return items
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func orZero(v interface{}) interface{} {
	if v == nil {
		return 0
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func toolNames(tools []toolexecutor.ToolSpec) string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func systemPrompt(goal string, tools []toolexecutor.ToolSpec) string {
	return fmt.Sprintf(systemPromptTemplate, toolNames(tools), goal)
}

const systemPromptTemplate = `You are an AI agent that must use the appropriate tool for each task.

Available tools: %s

GOAL: %s

INSTRUCTIONS:
- FIRST DECIDE: Can you answer this question directly from your knowledge? If YES, use "finish" immediately with your answer
- If the question requires CURRENT/REAL-TIME data (weather, stock prices, breaking news, current date/time), then use appropriate tools
- If the goal asks to "calculate" or involves math (like "15 * 8"), use math_calc tool with the expression
- If you need to create/read files, use file tools
- For WEATHER queries, use weather.info tool ONCE, then immediately finish with the guidance provided
- For STOCK PRICE queries, use stock.info tool ONCE, then immediately finish with the guidance provided
- For DATE/TIME queries ("what is the date today?", "what time is it?"), use shell.exec tool with command "date" to get current information
- For topics requiring CURRENT information or research, use web.search tool which provides comprehensive results
- Use think only if you need to analyze a complex problem first
- Use finish when you have the complete answer
- PREFER direct answers over tool usage for basic facts, definitions, historical information, and general knowledge
- IMPORTANT: Current date/time is NOT basic knowledge - it changes daily and requires real-time data

CRITICAL: AVOID INFINITE LOOPS AND HANDLE USER DENIALS
- If a tool has been used and provided any response, don't call it again with the same or similar arguments
- If you see "USER DENIED operation" in the context, NEVER retry that same operation type
- When the user denies an operation, immediately use "finish" with an explanation of what you cannot do and suggest alternatives
- If weather.info or stock.info provides guidance, immediately finish with that guidance
- If web.search returns results with information, immediately finish with a comprehensive answer based on those results
- NEVER respond with "No result" when you have web search results - always synthesize the information into a useful answer
- If you've tried 2-3 tools without success, finish with an explanation
- Always provide a meaningful response rather than repeating failed attempts
- RESPECT USER DECISIONS: If user denies permission, accept it gracefully and finish the task

DECISION EXAMPLES:
- "What is the capital of France?" -> FINISH directly with "Paris" (basic knowledge)
- "What is machine learning?" -> FINISH directly with explanation (general knowledge)
- "What's the weather today?" -> USE weather.info tool (current data needed)
- "What's Apple's stock price?" -> USE stock.info tool (current data needed)
- "What time is it?" -> USE shell.exec tool with "date" command (current date/time needed)
- "Calculate 15 * 8" -> USE math_calc tool (calculation required)
- "Who wrote Romeo and Juliet?" -> FINISH directly with "Shakespeare" (historical fact)
- "What are the latest news about AI?" -> USE web.search tool (current/recent information)

For math calculations, DO NOT think - immediately use math_calc tool.
Only use tools when you genuinely need current data, calculations, or file operations.`
