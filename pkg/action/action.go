package action

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidAction is returned when a raw planner action cannot be decoded
var ErrInvalidAction = errors.New("invalid action")

// Kind identifies an action variant
type Kind string

const (
	KindTool   Kind = "tool"
	KindThink  Kind = "think"
	KindFinish Kind = "finish"
)

// Action is one planner-chosen step. Only Tool, Think and Finish implement it.
type Action interface {
	Kind() Kind
	sealed()
}

// Tool invokes a registered tool by name
type Tool struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Think records reasoning without side effects
type Think struct {
	Reasoning string `json:"reasoning"`
}

// Finish ends the run with a final answer
type Finish struct {
	Output string `json:"output"`
}

func (Tool) Kind() Kind   { return KindTool }
func (Think) Kind() Kind  { return KindThink }
func (Finish) Kind() Kind { return KindFinish }

func (Tool) sealed()   {}
func (Think) sealed()  {}
func (Finish) sealed() {}

// MarshalJSON adds the type discriminator
func (t Tool) MarshalJSON() ([]byte, error) {
	args := t.Args
	if args == nil {
		args = map[string]interface{}{}
	}
	return json.Marshal(struct {
		Type Kind                   `json:"type"`
		Name string                 `json:"name"`
		Args map[string]interface{} `json:"args"`
	}{KindTool, t.Name, args})
}

// MarshalJSON adds the type discriminator
func (t Think) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      Kind   `json:"type"`
		Reasoning string `json:"reasoning"`
	}{KindThink, t.Reasoning})
}

// MarshalJSON adds the type discriminator
func (f Finish) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   Kind   `json:"type"`
		Output string `json:"output"`
	}{KindFinish, f.Output})
}

// Parse converts a raw action map, as produced by a planner or decoded from
// JSON, into a typed Action.
func Parse(raw map[string]interface{}) (Action, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty action", ErrInvalidAction)
	}

	kind, _ := raw["type"].(string)
	switch Kind(kind) {
	case KindTool:
		name, _ := raw["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("%w: tool name is required for tool actions", ErrInvalidAction)
		}
		args := map[string]interface{}{}
		if rawArgs, ok := raw["args"]; ok && rawArgs != nil {
			m, ok := rawArgs.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: tool args must be a mapping, got %T", ErrInvalidAction, rawArgs)
			}
			args = m
		}
		return Tool{Name: name, Args: args}, nil
	case KindThink:
		reasoning, _ := raw["reasoning"].(string)
		return Think{Reasoning: reasoning}, nil
	case KindFinish:
		output, _ := raw["output"].(string)
		return Finish{Output: output}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, kind)
	}
}

// Unmarshal decodes a JSON action
func Unmarshal(data []byte) (Action, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return Parse(raw)
}

// Describe renders a short human-readable form used in memory notes and logs
func Describe(a Action) string {
	switch v := a.(type) {
	case Tool:
		return fmt.Sprintf("tool action using %s with args %v", v.Name, v.Args)
	case Think:
		if v.Reasoning == "" {
			return "think action: thinking..."
		}
		return "think action: " + v.Reasoning
	case Finish:
		return "finish action"
	default:
		return "unknown action"
	}
}
