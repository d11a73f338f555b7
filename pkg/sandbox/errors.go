package sandbox

import "errors"

var (
	// ErrInvalidMemoryLimit is returned when the memory limit is invalid
	ErrInvalidMemoryLimit = errors.New("invalid memory limit (must be >= 0)")

	// ErrInvalidProcessLimit is returned when the process limit is invalid
	ErrInvalidProcessLimit = errors.New("invalid process limit (must be >= 0)")

	// ErrInvalidTimeout is returned when the timeout is invalid
	ErrInvalidTimeout = errors.New("invalid timeout (must be >= 0)")

	// ErrExecutionTimeout is returned when execution times out
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrCommandBlocked is returned when a command matches a blocked entry
	ErrCommandBlocked = errors.New("command blocked by sandbox policy")

	// ErrFilesystemAccessDenied is returned when filesystem access is denied
	ErrFilesystemAccessDenied = errors.New("filesystem access denied")

	// ErrShellSyntax is returned for command lines that need a shell
	ErrShellSyntax = errors.New("shell operators are not supported")

	// ErrEmptyCommand is returned when there is nothing to run
	ErrEmptyCommand = errors.New("empty command")
)
