package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSandbox(t *testing.T) *HostSandbox {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TempDir = t.TempDir()
	sb, err := NewHostSandbox(cfg)
	require.NoError(t, err)
	return sb
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(DefaultConfig()))

	cfg := DefaultConfig()
	cfg.ResourceLimits.MaxProcesses = -1
	assert.ErrorIs(t, ValidateConfig(cfg), ErrInvalidProcessLimit)

	cfg = DefaultConfig()
	cfg.ResourceLimits.Timeout = -time.Second
	_, err := NewHostSandbox(cfg)
	assert.ErrorIs(t, err, ErrInvalidTimeout)
}

func TestCheckCommand(t *testing.T) {
	blocked := DefaultConfig().BlockedCommands

	tests := []struct {
		command string
		blocked bool
	}{
		{command: "ls -la", blocked: false},
		{command: "echo summary", blocked: false},
		{command: "cat result.txt", blocked: false},
		{command: "sudo ls", blocked: true},
		{command: "/usr/bin/sudo ls", blocked: true},
		{command: "ls && su root", blocked: true},
		{command: "rm -rf /tmp/x", blocked: true},
		{command: "RM -RF /", blocked: true},
		{command: "dd if=/dev/zero of=x", blocked: true},
		{command: "FOO=1 reboot", blocked: true},
		{command: "echo reboot", blocked: false},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			err := CheckCommand(tt.command, blocked)
			if tt.blocked {
				assert.ErrorIs(t, err, ErrCommandBlocked)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseCommandLine(t *testing.T) {
	cmd, args, err := ParseCommandLine(`echo "hello world" 'a|b'`)
	require.NoError(t, err)
	assert.Equal(t, "echo", cmd)
	assert.Equal(t, []string{"hello world", "a|b"}, args)

	for _, line := range []string{"ls | wc", "ls > out", "a; b", "echo $(id)", "echo `id`", "sleep 1 &"} {
		_, _, err := ParseCommandLine(line)
		assert.ErrorIs(t, err, ErrShellSyntax, line)
	}

	_, _, err = ParseCommandLine("   ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestHostSandbox_Execute(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a unix userland")
	}
	sb := newTestSandbox(t)
	ctx := context.Background()

	t.Run("simple command", func(t *testing.T) {
		result, err := sb.Execute(ctx, ExecuteRequest{Command: "echo", Args: []string{"hello", "world"}})

		require.NoError(t, err)
		assert.Equal(t, 0, result.ExitCode)
		assert.Equal(t, "hello world\n", string(result.Stdout))
		assert.Empty(t, result.Stderr)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		result, err := sb.Execute(ctx, ExecuteRequest{Command: "ls", Args: []string{"/definitely/missing/path"}})

		require.NoError(t, err)
		assert.NotEqual(t, 0, result.ExitCode)
		assert.NotEmpty(t, result.Stderr)
	})

	t.Run("timeout", func(t *testing.T) {
		result, err := sb.Execute(ctx, ExecuteRequest{
			Command: "sleep",
			Args:    []string{"10"},
			Timeout: 100 * time.Millisecond,
		})

		assert.ErrorIs(t, err, ErrExecutionTimeout)
		assert.Equal(t, -1, result.ExitCode)
	})

	t.Run("stdin and env", func(t *testing.T) {
		result, err := sb.Execute(ctx, ExecuteRequest{
			Command: "cat",
			Stdin:   []byte("piped"),
		})
		require.NoError(t, err)
		assert.Equal(t, "piped", string(result.Stdout))

		result, err = sb.Execute(ctx, ExecuteRequest{
			Command: "env",
			Env:     map[string]string{"GREETING": "hi"},
		})
		require.NoError(t, err)
		assert.Contains(t, string(result.Stdout), "GREETING=hi")
		assert.Contains(t, string(result.Stdout), "STEPWISE_NETWORK=0")
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := sb.Execute(ctx, ExecuteRequest{Command: "no-such-binary-stepwise"})
		assert.Error(t, err)
	})

	t.Run("blocked command", func(t *testing.T) {
		_, err := sb.Execute(ctx, ExecuteRequest{Command: "sudo", Args: []string{"true"}})
		assert.ErrorIs(t, err, ErrCommandBlocked)
	})
}

func TestHostSandbox_FilesystemAccess(t *testing.T) {
	allowed := t.TempDir()
	cfg := DefaultConfig()
	cfg.FilesystemAccess.AllowedPaths = []string{allowed}
	sb, err := NewHostSandbox(cfg)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(allowed, "a.txt"), []byte("x"), 0644))

	result, err := sb.Run(ctx, "ls", allowed)
	require.NoError(t, err)
	assert.Contains(t, string(result.Stdout), "a.txt")

	_, err = sb.Run(ctx, "ls", "/etc")
	assert.ErrorIs(t, err, ErrFilesystemAccessDenied)

	_, err = sb.Run(ctx, "ls", os.TempDir()+"-elsewhere")
	assert.ErrorIs(t, err, ErrFilesystemAccessDenied)
}

func TestHostSandbox_Run(t *testing.T) {
	sb := newTestSandbox(t)
	ctx := context.Background()

	result, err := sb.Run(ctx, `echo "quoted words"`, "")
	require.NoError(t, err)
	assert.Equal(t, "quoted words\n", string(result.Stdout))

	_, err = sb.Run(ctx, "echo hi | wc -c", "")
	assert.ErrorIs(t, err, ErrShellSyntax)

	_, err = sb.Run(ctx, "su -", "")
	assert.ErrorIs(t, err, ErrCommandBlocked)
}

func TestProcessLimiter_Apply(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, NewProcessLimiter(cfg).Apply(), "disabled limiter is a no-op")
}
