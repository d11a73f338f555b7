package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// HostSandbox runs commands directly on the host with a minimal
// environment and per-child rlimits.
type HostSandbox struct {
	config Config
}

// NewHostSandbox creates a new host-based sandbox
func NewHostSandbox(config Config) (*HostSandbox, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &HostSandbox{config: config}, nil
}

// Config returns the sandbox configuration
func (h *HostSandbox) Config() Config {
	return h.config
}

// Run parses a command line and executes it in workDir
func (h *HostSandbox) Run(ctx context.Context, commandLine, workDir string) (ExecuteResult, error) {
	if err := CheckCommand(commandLine, h.config.BlockedCommands); err != nil {
		return ExecuteResult{ExitCode: -1, Error: err}, err
	}

	command, args, err := ParseCommandLine(commandLine)
	if err != nil {
		return ExecuteResult{ExitCode: -1, Error: err}, err
	}

	return h.Execute(ctx, ExecuteRequest{
		Command:    command,
		Args:       args,
		WorkingDir: workDir,
	})
}

// Execute runs a command in the sandbox
func (h *HostSandbox) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	line := strings.TrimSpace(req.Command + " " + strings.Join(req.Args, " "))
	if err := CheckCommand(line, h.config.BlockedCommands); err != nil {
		return ExecuteResult{ExitCode: -1, Error: err}, err
	}

	if err := h.checkFilesystemAccess(req.WorkingDir); err != nil {
		return ExecuteResult{ExitCode: -1, Error: err}, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = h.config.ResourceLimits.Timeout
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	cmd.Env = h.buildEnvironment(req.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(req.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ExecuteResult{ExitCode: -1, Duration: time.Since(start), Error: err}, fmt.Errorf("failed to start command: %w", err)
	}

	if err := applyChildLimits(cmd.Process.Pid, h.config.ResourceLimits); err != nil {
		log.Debug().Err(err).Int("pid", cmd.Process.Pid).Msg("Could not apply child resource limits")
	}

	err := cmd.Wait()
	duration := time.Since(start)

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return ExecuteResult{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: -1,
			Duration: duration,
			Error:    ErrExecutionTimeout,
		}, ErrExecutionTimeout
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}

	result := ExecuteResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}
	if err != nil && exitCode == 0 {
		result.Error = err
	}

	log.Debug().
		Str("command", req.Command).
		Strs("args", req.Args).
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("Command executed in sandbox")

	return result, nil
}

// checkFilesystemAccess checks the working directory against the allow and
// deny lists. Denied prefixes win.
func (h *HostSandbox) checkFilesystemAccess(path string) error {
	if path == "" {
		return nil
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
	}

	for _, denied := range h.config.FilesystemAccess.DeniedPaths {
		if underDir(cleanPath, denied) {
			return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
		}
	}

	if len(h.config.FilesystemAccess.AllowedPaths) == 0 {
		return nil
	}

	for _, allowed := range h.config.FilesystemAccess.AllowedPaths {
		if underDir(cleanPath, allowed) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
}

func underDir(path, dir string) bool {
	dir = filepath.Clean(dir)
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// buildEnvironment starts from a minimal environment and adds req.Env
func (h *HostSandbox) buildEnvironment(env map[string]string) []string {
	home := h.config.TempDir
	if home == "" {
		home = os.TempDir()
	}

	network := "0"
	if h.config.EnableNetwork {
		network = "1"
	}

	result := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + home,
		"TMPDIR=" + home,
		"LANG=C.UTF-8",
		"STEPWISE_NETWORK=" + network,
	}

	for key, value := range env {
		result = append(result, fmt.Sprintf("%s=%s", key, value))
	}

	return result
}
