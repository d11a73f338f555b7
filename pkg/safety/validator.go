package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harun/stepwise/pkg/action"
	"github.com/rs/zerolog/log"
)

// Validator applies structural and content checks to actions
type Validator struct {
	policy Policy
}

// New creates a validator for the given policy
func New(policy Policy) *Validator {
	return &Validator{policy: policy}
}

// Policy returns the validator's policy
func (v *Validator) Policy() Policy {
	return v.policy
}

var defaultValidator = New(DefaultPolicy())

// ValidateAction validates an action with the default policy
func ValidateAction(a action.Action) (action.Action, error) {
	return defaultValidator.ValidateAction(a)
}

// ValidateAction checks the action's shape and, for tools, its arguments
// against content policy. A valid action is returned unchanged.
func (v *Validator) ValidateAction(a action.Action) (action.Action, error) {
	switch act := a.(type) {
	case nil:
		return nil, fmt.Errorf("%w: action is required", ErrValidation)
	case action.Tool:
		if err := v.validateTool(act); err != nil {
			return nil, err
		}
		return act, nil
	case action.Think, action.Finish:
		return act, nil
	default:
		return nil, fmt.Errorf("%w: unsupported action %T", ErrValidation, a)
	}
}

func (v *Validator) validateTool(t action.Tool) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tool name is required for tool actions", ErrValidation)
	}
	if len(t.Args) > v.policy.MaxArgsCount {
		return fmt.Errorf("%w: too many tool arguments: %d > %d", ErrValidation, len(t.Args), v.policy.MaxArgsCount)
	}
	for key, value := range t.Args {
		if s, ok := value.(string); ok && len(s) > v.policy.MaxInputLength {
			return fmt.Errorf("%w: tool argument '%s' too long: %d", ErrValidation, key, len(s))
		}
	}

	if v.policy.EnableCommandValidation && executionTools[t.Name] {
		for _, field := range []string{"command", "code"} {
			text, ok := t.Args[field].(string)
			if !ok {
				continue
			}
			if err := CheckCommand(text); err != nil {
				return err
			}
		}
	}

	if v.policy.EnableFilePathCheck && pathWriteTools[t.Name] {
		if path, ok := t.Args["path"].(string); ok && path != "" {
			if err := v.checkFilePath(path); err != nil {
				return err
			}
		}
	}

	return nil
}

// CheckCommand rejects command or code text matching a blocked pattern.
// Suspicious patterns are logged but allowed.
func CheckCommand(text string) error {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, re := range blockedCommandPatterns {
		if re.MatchString(lower) {
			log.Warn().Str("pattern", re.String()).Msg("Blocked command pattern detected")
			return fmt.Errorf("%w: command matches blocked pattern %s", ErrBlocked, re.String())
		}
	}

	for _, re := range suspiciousCommandPatterns {
		if re.MatchString(lower) {
			log.Warn().Str("pattern", re.String()).Msg("Suspicious command pattern detected")
		}
	}

	return nil
}

// checkFilePath rejects writes under system paths and into oversized files
func (v *Validator) checkFilePath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	if !v.underWorkDir(abs) {
		for _, candidate := range []string{path, abs} {
			for _, blocked := range v.policy.BlockedFilePaths {
				if strings.HasPrefix(candidate, blocked) {
					log.Warn().Str("path", abs).Msg("Blocked file operation on dangerous path")
					return fmt.Errorf("%w: file operation on protected path %s", ErrBlocked, path)
				}
			}
		}
	}

	info, err := os.Stat(abs)
	if err == nil && !info.IsDir() {
		limit := int64(v.policy.MaxFileSizeMB) * 1024 * 1024
		if info.Size() > limit {
			return fmt.Errorf("%w: file too large: %d bytes > %d MB", ErrBlocked, info.Size(), v.policy.MaxFileSizeMB)
		}
	}

	return nil
}

func (v *Validator) underWorkDir(abs string) bool {
	workDir := v.policy.WorkDir
	if workDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return false
		}
		workDir = cwd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil || workDir == string(filepath.Separator) {
		return false
	}
	return abs == workDir || strings.HasPrefix(abs, workDir+string(filepath.Separator))
}

// ValidateInput validates a goal with the default policy
func ValidateInput(goal string) error {
	return defaultValidator.ValidateInput(goal)
}

// ValidateInput rejects empty, oversized or injection-shaped goals
func (v *Validator) ValidateInput(goal string) error {
	if strings.TrimSpace(goal) == "" {
		return fmt.Errorf("%w: goal is empty", ErrUnsafeInput)
	}
	if len(goal) > v.policy.MaxInputLength {
		return fmt.Errorf("%w: input too long: %d > %d", ErrUnsafeInput, len(goal), v.policy.MaxInputLength)
	}
	if !v.policy.EnableContentFiltering {
		return nil
	}
	for _, re := range injectionPatterns {
		if re.MatchString(goal) {
			log.Warn().Str("pattern", re.String()).Msg("Potential injection detected")
			return fmt.Errorf("%w: potential injection detected", ErrUnsafeInput)
		}
	}
	return nil
}
