package safety

import "errors"

var (
	// ErrValidation marks a structurally malformed action or argument set
	ErrValidation = errors.New("validation failed")

	// ErrBlocked marks an action rejected by content policy
	ErrBlocked = errors.New("blocked by safety policy")

	// ErrUnsafeInput marks a goal rejected by input validation
	ErrUnsafeInput = errors.New("unsafe input")
)
