package planner

import (
	"strings"

	"github.com/harun/stepwise/pkg/action"
	"github.com/harun/stepwise/pkg/agent"
)

// routingWindow is how many trailing action records feed the routing context
const routingWindow = 3

// Selection is the model chosen for one planning call
type Selection struct {
	Model          string    `json:"model"`
	IsComplex      bool      `json:"is_complex"`
	Analysis       *Analysis `json:"complexity_analysis,omitempty"`
	RoutingEnabled bool      `json:"routing_enabled"`
}

// Selector routes goals between a chat model and a reasoning model.
// Routing only applies to the deepseek provider.
type Selector struct {
	provider      string
	model         string
	reasonerModel string
	routing       bool
}

// NewSelector creates a selector. An empty reasonerModel defaults to deepseek-reasoner.
func NewSelector(provider, model, reasonerModel string, routing bool) *Selector {
	if reasonerModel == "" {
		reasonerModel = DefaultReasonerModel
	}
	return &Selector{
		provider:      provider,
		model:         model,
		reasonerModel: reasonerModel,
		routing:       routing,
	}
}

// RoutingEnabled reports whether Select scores goals at all
func (s *Selector) RoutingEnabled() bool {
	return s.routing && s.provider == "deepseek"
}

// Select picks the model for goal given the routing context
func (s *Selector) Select(goal, context string) Selection {
	if !s.RoutingEnabled() {
		return Selection{Model: s.model}
	}

	analysis := Score(goal, context)
	model := s.model
	if analysis.IsComplex {
		model = s.reasonerModel
	}
	return Selection{
		Model:          model,
		IsComplex:      analysis.IsComplex,
		Analysis:       &analysis,
		RoutingEnabled: true,
	}
}

// RoutingContext summarizes the last few actions in history
func RoutingContext(history []agent.StepRecord) string {
	var actions []action.Action
	for _, rec := range history {
		if rec.Kind == agent.RecordAction && rec.Action != nil {
			actions = append(actions, rec.Action)
		}
	}
	if len(actions) > routingWindow {
		actions = actions[len(actions)-routingWindow:]
	}

	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		switch v := a.(type) {
		case action.Tool:
			parts = append(parts, "Used "+v.Name+" tool")
		case action.Think:
			parts = append(parts, "Performed thinking step")
		}
	}
	return strings.Join(parts, "; ")
}
