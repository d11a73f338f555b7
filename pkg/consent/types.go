package consent

import (
	"fmt"
	"time"
)

// RiskLevel classifies how dangerous an operation is
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Decision is the outcome of a consent request
type Decision string

const (
	Allow                    Decision = "allow"
	Deny                     Decision = "deny"
	AllowAllSession          Decision = "allow_all"
	DenyAllSession           Decision = "deny_all"
	AllowOperationForSession Decision = "allow_session"
)

// Approved reports whether the decision lets the operation run
func Approved(d Decision) bool {
	switch d {
	case Allow, AllowAllSession, AllowOperationForSession:
		return true
	default:
		return false
	}
}

// Request describes an operation awaiting consent
type Request struct {
	Operation string                 `json:"operation"`
	Target    string                 `json:"target"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Risk      RiskLevel              `json:"risk_level"`

	// Subject is the untruncated target. Target is what the user sees.
	Subject string `json:"-"`
}

// Key returns the session key for the request. It is built from the full
// subject so two long targets sharing a display prefix never collide.
func (r Request) Key() string {
	return r.Operation + ":" + r.subject()
}

func (r Request) subject() string {
	if r.Subject != "" {
		return r.Subject
	}
	return r.Target
}

func (r Request) String() string {
	return fmt.Sprintf("%s on %s", r.Operation, r.Target)
}

// Source says which rule produced a decision
type Source string

const (
	SourceGlobal  Source = "global"
	SourceSession Source = "session"
	SourceAuto    Source = "auto"
	SourceUser    Source = "user"
)

// Record is one entry of the engine's decision log
type Record struct {
	Request   Request   `json:"request"`
	Decision  Decision  `json:"decision"`
	Source    Source    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Policy configures consent behavior for a run
type Policy struct {
	Interactive     bool          `json:"enable_interactive_consent" mapstructure:"enable_interactive_consent"`
	AutoApproveSafe bool          `json:"auto_approve_safe_operations" mapstructure:"auto_approve_safe_operations"`
	AutoApproveRead bool          `json:"auto_approve_read_operations" mapstructure:"auto_approve_read_operations"`
	RequireWrite    bool          `json:"require_consent_for_write" mapstructure:"require_consent_for_write"`
	RequireDelete   bool          `json:"require_consent_for_delete" mapstructure:"require_consent_for_delete"`
	RequireExecute  bool          `json:"require_consent_for_execute" mapstructure:"require_consent_for_execute"`
	SafeDirectories []string      `json:"safe_directories" mapstructure:"safe_directories"`
	PromptTimeout   time.Duration `json:"prompt_timeout" mapstructure:"prompt_timeout"`

	// WorkDir counts as a safe directory. Empty means the process cwd.
	WorkDir string `json:"-" mapstructure:"-"`
}

// DefaultPolicy returns the default consent policy
func DefaultPolicy() Policy {
	return Policy{
		Interactive:     false,
		AutoApproveSafe: true,
		AutoApproveRead: true,
		RequireWrite:    true,
		RequireDelete:   true,
		RequireExecute:  true,
		SafeDirectories: []string{"./", "./temp/", "./workspace/", "./output/", "./artifacts/"},
		PromptTimeout:   60 * time.Second,
	}
}
