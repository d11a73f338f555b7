package consent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/harun/stepwise/internal/observability"
	"github.com/rs/zerolog/log"
)

// Prompter asks a human to choose one of the five decisions
type Prompter interface {
	Prompt(ctx context.Context, req Request) (Decision, error)
}

// Engine produces consent decisions for one run
type Engine struct {
	policy   Policy
	prompter Prompter

	mu               sync.Mutex
	sessionApprovals map[string]struct{}
	sessionDenials   map[string]struct{}
	globalAllowAll   bool
	globalDenyAll    bool
	log              []Record
}

// NewEngine creates an engine with fresh session state
func NewEngine(policy Policy, prompter Prompter) *Engine {
	if policy.PromptTimeout <= 0 {
		policy.PromptTimeout = 60 * time.Second
	}
	return &Engine{
		policy:           policy,
		prompter:         prompter,
		sessionApprovals: make(map[string]struct{}),
		sessionDenials:   make(map[string]struct{}),
	}
}

// Policy returns the engine's policy
func (e *Engine) Policy() Policy {
	return e.policy
}

// Request decides on a consent request. Rules are evaluated in order and the
// first match wins.
func (e *Engine) Request(ctx context.Context, req Request) Decision {
	req.Risk = e.policy.ClassifyRisk(req)

	e.mu.Lock()
	decision, source, decided := e.decideLocked(req)
	e.mu.Unlock()

	if !decided {
		decision = e.prompt(ctx, req)
		source = SourceUser
	}

	e.record(ctx, req, decision, source)
	return decision
}

func (e *Engine) decideLocked(req Request) (Decision, Source, bool) {
	if e.globalDenyAll {
		return Deny, SourceGlobal, true
	}
	if e.globalAllowAll {
		return Allow, SourceGlobal, true
	}

	key := req.Key()
	if _, ok := e.sessionApprovals[key]; ok {
		return Allow, SourceSession, true
	}
	if _, ok := e.sessionDenials[key]; ok {
		return Deny, SourceSession, true
	}

	lowRisk := e.policy.AutoApproveSafe && req.Risk == RiskLow

	if !e.policy.Interactive {
		if lowRisk {
			return Allow, SourceAuto, true
		}
		e.sessionDenials[key] = struct{}{}
		return Deny, SourceAuto, true
	}

	if lowRisk {
		return Allow, SourceAuto, true
	}

	if e.prompter == nil {
		return Deny, SourceAuto, true
	}

	return "", "", false
}

func (e *Engine) prompt(ctx context.Context, req Request) Decision {
	promptCtx, cancel := context.WithTimeout(ctx, e.policy.PromptTimeout)
	defer cancel()

	decision, err := e.prompter.Prompt(promptCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Str("operation", req.Operation).Msg("Consent prompt timed out")
		} else {
			log.Warn().Err(err).Str("operation", req.Operation).Msg("Consent prompt failed")
		}
		return Deny
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch decision {
	case Allow, Deny:
	case AllowAllSession:
		e.globalAllowAll = true
	case DenyAllSession:
		e.globalDenyAll = true
	case AllowOperationForSession:
		e.sessionApprovals[req.Key()] = struct{}{}
	default:
		log.Warn().Str("decision", string(decision)).Msg("Unknown consent decision")
		return Deny
	}
	return decision
}

func (e *Engine) record(ctx context.Context, req Request, decision Decision, source Source) {
	e.mu.Lock()
	e.log = append(e.log, Record{
		Request:   req,
		Decision:  decision,
		Source:    source,
		Timestamp: time.Now(),
	})
	e.mu.Unlock()

	observability.RecordConsentDecision(string(decision), string(source))
	observability.AuditConsent(ctx, req.Operation, string(decision), string(source), map[string]interface{}{
		"target": req.Target,
		"risk":   string(req.Risk),
	})

	event := log.Info()
	if !Approved(decision) {
		event = log.Warn()
	}
	event.
		Str("operation", req.Operation).
		Str("target", req.Target).
		Str("risk", string(req.Risk)).
		Str("decision", string(decision)).
		Str("source", string(source)).
		Msg("Consent decision")
}

// Decisions returns a copy of the decision log
func (e *Engine) Decisions() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Record, len(e.log))
	copy(out, e.log)
	return out
}

// State is a snapshot of the engine's session state
type State struct {
	GlobalAllowAll   bool     `json:"global_allow_all"`
	GlobalDenyAll    bool     `json:"global_deny_all"`
	SessionApprovals []string `json:"session_approvals"`
	SessionDenials   []string `json:"session_denials"`
}

// Snapshot returns the current session state
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := State{GlobalAllowAll: e.globalAllowAll, GlobalDenyAll: e.globalDenyAll}
	for k := range e.sessionApprovals {
		s.SessionApprovals = append(s.SessionApprovals, k)
	}
	for k := range e.sessionDenials {
		s.SessionDenials = append(s.SessionDenials, k)
	}
	return s
}

// RequiresConsent reports whether a tool call must pass through the engine.
// Nothing requires consent unless interactive consent is enabled.
func (p Policy) RequiresConsent(tool string) bool {
	if !p.Interactive {
		return false
	}
	switch tool {
	case "file.write", "file.mkdir":
		return p.RequireWrite
	case "file.delete":
		return p.RequireDelete
	case "shell.exec", "code.exec":
		return p.RequireExecute
	case "file.read", "file.list":
		return !p.AutoApproveRead
	default:
		return false
	}
}

var targetFields = []string{"path", "command", "code", "q", "query", "url"}

const (
	maxTargetRunes = 100
	keepRunes      = 97
)

// TargetOf picks the full target of a tool call
func TargetOf(tool string, args map[string]interface{}) string {
	for _, field := range targetFields {
		value, ok := args[field]
		if !ok {
			continue
		}
		if s, ok := value.(string); ok {
			return s
		}
		return fmt.Sprint(value)
	}
	return fmt.Sprintf("<%s operation>", tool)
}

// DisplayTarget shortens a target for prompts and logs, cutting on runes
func DisplayTarget(target string) string {
	if utf8.RuneCountInString(target) <= maxTargetRunes {
		return target
	}
	return string([]rune(target)[:keepRunes]) + "..."
}

// ExtractTarget picks the display target of a tool call
func ExtractTarget(tool string, args map[string]interface{}) string {
	return DisplayTarget(TargetOf(tool, args))
}
