package sandbox

import (
	"context"
	"time"
)

// Config defines sandbox configuration
type Config struct {
	ResourceLimits   ResourceLimits   `json:"resource_limits"`
	FilesystemAccess FilesystemAccess `json:"filesystem_access"`

	// BlockedCommands are refused before execution. Single words match
	// command names; entries with spaces match anywhere in the line.
	BlockedCommands []string `json:"blocked_commands"`

	// EnforceProcessLimits lets ProcessLimiter lower the current process's
	// own rlimits. Child processes are always limited.
	EnforceProcessLimits bool `json:"enforce_process_limits"`

	// TempDir is exported to children as TMPDIR and HOME
	TempDir string `json:"temp_dir"`

	// EnableNetwork is advisory; it is passed to children as
	// STEPWISE_NETWORK so scripts can check it.
	EnableNetwork bool `json:"enable_network"`
}

// ResourceLimits defines resource constraints for sandboxed execution
type ResourceLimits struct {
	MaxMemoryMB   int           `json:"max_memory_mb"`
	MaxCPUSeconds int           `json:"max_cpu_seconds"`
	MaxFileSizeMB int           `json:"max_file_size_mb"`
	MaxProcesses  int           `json:"max_processes"`
	Timeout       time.Duration `json:"timeout"`
}

// FilesystemAccess defines which working directories commands may use
type FilesystemAccess struct {
	AllowedPaths []string `json:"allowed_paths"`
	DeniedPaths  []string `json:"denied_paths"`
}

// ExecuteRequest represents a sandbox execution request
type ExecuteRequest struct {
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env"`
	WorkingDir string            `json:"working_dir"`
	Stdin      []byte            `json:"stdin"`
	Timeout    time.Duration     `json:"timeout"`
}

// ExecuteResult represents a sandbox execution result
type ExecuteResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Error    error         `json:"error,omitempty"`
}

// Sandbox runs commands under resource limits
type Sandbox interface {
	Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
	Run(ctx context.Context, commandLine, workDir string) (ExecuteResult, error)
}

// DefaultConfig returns a default sandbox configuration
func DefaultConfig() Config {
	return Config{
		ResourceLimits: ResourceLimits{
			MaxMemoryMB:   512,
			MaxCPUSeconds: 30,
			MaxFileSizeMB: 100,
			MaxProcesses:  5,
			Timeout:       30 * time.Second,
		},
		FilesystemAccess: FilesystemAccess{
			DeniedPaths: []string{"/etc", "/sys", "/proc", "/boot", "/dev"},
		},
		BlockedCommands: []string{
			"rm -rf", "sudo", "su", "chmod 777", "mkfs", "dd if=",
			"shutdown", "reboot", "halt", "poweroff", "init",
		},
	}
}

// ValidateConfig validates a sandbox configuration
func ValidateConfig(cfg Config) error {
	if cfg.ResourceLimits.MaxMemoryMB < 0 || cfg.ResourceLimits.MaxFileSizeMB < 0 || cfg.ResourceLimits.MaxCPUSeconds < 0 {
		return ErrInvalidMemoryLimit
	}
	if cfg.ResourceLimits.MaxProcesses < 0 {
		return ErrInvalidProcessLimit
	}
	if cfg.ResourceLimits.Timeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}
