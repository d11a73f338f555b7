package sandbox

import "github.com/rs/zerolog/log"

const megabyte = 1024 * 1024

// ProcessLimiter lowers the soft rlimits of the current process
type ProcessLimiter struct {
	limits  ResourceLimits
	enforce bool
}

// NewProcessLimiter creates a limiter from the sandbox config
func NewProcessLimiter(cfg Config) *ProcessLimiter {
	return &ProcessLimiter{limits: cfg.ResourceLimits, enforce: cfg.EnforceProcessLimits}
}

// Apply lowers RLIMIT_FSIZE, RLIMIT_CPU and RLIMIT_AS when enforcement is
// enabled. Limits are only ever lowered. Errors from each limit are joined.
func (p *ProcessLimiter) Apply() error {
	if !p.enforce {
		return nil
	}
	err := applyProcessLimits(p.limits)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to apply process limits")
	}
	return err
}
