package coretools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/harun/stepwise/pkg/sandbox"
	"github.com/harun/stepwise/pkg/toolexecutor"
)

type shellRequest struct {
	Command string `mapstructure:"command"`
}

type codeRequest struct {
	Code string `mapstructure:"code"`
}

func shellExecTool(opts Options) toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "shell.exec",
		Description: "Run a single command (no pipes or redirection) and capture its output.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "command", Type: "string", Description: "Command line to execute", Required: true},
		},
		Timeout: 30 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			if opts.Sandbox == nil {
				return nil, fmt.Errorf("%w: shell execution is not configured", toolexecutor.ErrBlocked)
			}
			var req shellRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}

			res, err := opts.Sandbox.Run(ctx, req.Command, opts.WorkDir)
			if errors.Is(err, sandbox.ErrExecutionTimeout) {
				return failure("Command execution timed out"), nil
			}
			if errors.Is(err, sandbox.ErrEmptyCommand) {
				return failure("Command cannot be empty"), nil
			}
			if errors.Is(err, exec.ErrNotFound) {
				return failure("Command not found: %s", req.Command), nil
			}
			if err != nil {
				return nil, err
			}

			out := map[string]interface{}{
				"success":     res.ExitCode == 0 && res.Error == nil,
				"stdout":      string(res.Stdout),
				"stderr":      string(res.Stderr),
				"return_code": res.ExitCode,
				"duration_ms": res.Duration.Milliseconds(),
			}
			if res.Error != nil {
				out["error"] = res.Error.Error()
			}
			return out, nil
		},
	}
}

func codeExecTool() toolexecutor.ToolSpec {
	return toolexecutor.ToolSpec{
		Name:        "code.exec",
		Description: "Execute JavaScript in an isolated interpreter. console.log output is captured; the value of the last expression is returned.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "code", Type: "string", Description: "JavaScript source to execute", Required: true},
		},
		Timeout: 30 * time.Second,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			var req codeRequest
			if err := decodeArgs(args, &req); err != nil {
				return nil, err
			}

			vm := goja.New()
			var stdout strings.Builder
			console := vm.NewObject()
			if err := console.Set("log", func(call goja.FunctionCall) goja.Value {
				parts := make([]string, len(call.Arguments))
				for i, arg := range call.Arguments {
					parts[i] = arg.String()
				}
				stdout.WriteString(strings.Join(parts, " "))
				stdout.WriteByte('\n')
				return goja.Undefined()
			}); err != nil {
				return nil, err
			}
			if err := vm.Set("console", console); err != nil {
				return nil, err
			}

			value, err := runInterruptible(ctx, vm, req.Code)
			if err != nil {
				var interrupted *goja.InterruptedError
				if errors.As(err, &interrupted) {
					return failure("Code execution timed out"), nil
				}
				return map[string]interface{}{
					"success":     false,
					"stdout":      stdout.String(),
					"stderr":      err.Error(),
					"return_code": 1,
				}, nil
			}

			out := map[string]interface{}{
				"success":     true,
				"stdout":      stdout.String(),
				"stderr":      "",
				"return_code": 0,
			}
			if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
				out["result"] = value.Export()
			}
			return out, nil
		},
	}
}

// runInterruptible runs src and interrupts the VM when ctx ends
func runInterruptible(ctx context.Context, vm *goja.Runtime, src string) (goja.Value, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return vm.RunString(src)
}
