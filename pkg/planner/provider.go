package planner

import (
	"context"
	"fmt"
	"time"
)

// Provider is an LLM API client used for planning
type Provider interface {
	// Call makes one chat completion with function calling
	Call(ctx context.Context, request Request) (*Response, error)

	// Provider returns the provider name
	Provider() string
}

// Message is one chat message
type Message struct {
	Role    string
	Content string
}

// Function is a callable offered to the model
type Function struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Request contains the parameters for one LLM call
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Functions    []Function
	Temperature  float64
	MaxTokens    int
}

// ToolCall is a function call returned by the model. Arguments is the raw
// JSON string; decoding is left to the planner.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Response contains the model output
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// ProviderSettings configures one provider client
type ProviderSettings struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

const deepSeekBaseURL = "https://api.deepseek.com/v1"

// NewProvider creates a provider by name
func NewProvider(name string, settings ProviderSettings) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(name, settings), nil
	case "deepseek":
		if settings.BaseURL == "" {
			settings.BaseURL = deepSeekBaseURL
		}
		return NewOpenAIProvider(name, settings), nil
	case "anthropic":
		return NewAnthropicProvider(settings), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
