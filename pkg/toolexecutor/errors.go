package toolexecutor

import "errors"

var (
	// ErrBlocked marks a handler error as a policy block. Blocked errors
	// become blocked results and are never retried.
	ErrBlocked = errors.New("blocked")

	// ErrToolNotFound is returned when a tool is not in the catalog
	ErrToolNotFound = errors.New("tool not found")

	// ErrDuplicateTool is returned when a tool name is registered twice
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrInvalidSpec is returned for malformed tool specs
	ErrInvalidSpec = errors.New("invalid tool spec")

	errTimeout = errors.New("tool execution timed out")
)
